package api

// User is a record of the users resource.
type User struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email"`
}

// Post is a record of the posts resource.
type Post struct {
	ID     int    `json:"id"`
	UserID int    `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body,omitempty"`
}

// Product is a record of the products resource.
type Product struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// UserPosts is one state of the user-with-posts view. Loading is set while
// the requests for UserID are in flight; Err is set when they failed.
type UserPosts struct {
	UserID    int
	Loading   bool
	User      *User
	Posts     []Post
	PostCount int
	Err       error
}
