package user

// SearchRequest sets the directory search term. An empty term shows everyone.
type SearchRequest struct {
	Term string `json:"term" form:"q" binding:"max=200"`
}

// SelectRequest opens the detail modal on a loaded user.
type SelectRequest struct {
	ID int `json:"id" form:"id" binding:"required,min=1"`
}
