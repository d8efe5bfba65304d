package testutil

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

func TestEventually(t *testing.T) {
	t.Run("condition met immediately", func(t *testing.T) {
		called := false
		Eventually(t, func() bool {
			called = true
			return true
		}, 100*time.Millisecond, 10*time.Millisecond)

		if !called {
			t.Error("condition function should be called")
		}
	})

	t.Run("condition met after delay", func(t *testing.T) {
		var counter int32
		go func() {
			time.Sleep(50 * time.Millisecond)
			atomic.StoreInt32(&counter, 1)
		}()

		Eventually(t, func() bool {
			return atomic.LoadInt32(&counter) == 1
		}, time.Second, 10*time.Millisecond)
	})
}

func TestWaitForInt32(t *testing.T) {
	var value int32

	go func() {
		time.Sleep(30 * time.Millisecond)
		atomic.StoreInt32(&value, 42)
	}()

	WaitForInt32(t, &value, 42, time.Second)
}

func TestWaitForAtLeastInt32(t *testing.T) {
	var value int32
	stop := make(chan struct{})
	done := make(chan struct{})

	// Steps of two never land on an odd target.
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case <-time.After(time.Millisecond):
				atomic.AddInt32(&value, 2)
			}
		}
	}()

	WaitForAtLeastInt32(t, &value, 3, time.Second)
	close(stop)
	<-done
	if v := atomic.LoadInt32(&value); v < 3 {
		t.Errorf("value = %d, want >= 3", v)
	}
}

func TestFakeAPI(t *testing.T) {
	api := NewFakeAPI(t)

	t.Run("list", func(t *testing.T) {
		var users []Record
		getJSON(t, api.URL()+"/users", http.StatusOK, &users)
		AssertEqual(t, len(users), 7)
	})

	t.Run("filter by userId", func(t *testing.T) {
		var posts []Record
		getJSON(t, api.URL()+"/posts?userId=1", http.StatusOK, &posts)
		AssertEqual(t, len(posts), 3)
	})

	t.Run("get by id", func(t *testing.T) {
		var user Record
		getJSON(t, api.URL()+"/users/2", http.StatusOK, &user)
		AssertEqual(t, user["name"].(string), "Bruno Diaz")
	})

	t.Run("missing id", func(t *testing.T) {
		getJSON(t, api.URL()+"/users/99", http.StatusNotFound, nil)
	})

	t.Run("injected failures", func(t *testing.T) {
		api.FailNext("products", 2, http.StatusServiceUnavailable)
		getJSON(t, api.URL()+"/products", http.StatusServiceUnavailable, nil)
		getJSON(t, api.URL()+"/products", http.StatusServiceUnavailable, nil)
		getJSON(t, api.URL()+"/products", http.StatusOK, nil)
		AssertEqual(t, api.Requests("products"), 3)
	})
}

func getJSON(t *testing.T, url string, wantStatus int, dst any) {
	t.Helper()
	resp, err := http.Get(url)
	AssertNoError(t, err)
	defer resp.Body.Close()
	AssertEqual(t, resp.StatusCode, wantStatus)
	if dst != nil {
		AssertNoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
}
