package models

import "time"

type Post struct {
	ID        int        `json:"id"`
	Title     *string    `json:"title"`
	Content   string     `json:"content"`
	ImageURL  *string    `json:"image_url"`
	AuthorID  int        `json:"author_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
	Author    *User      `json:"author"`
}

// PostPatch is a partial post update. Only present, non-null fields are applied.
type PostPatch struct {
	Title    Optional[string] `json:"title"`
	Content  Optional[string] `json:"content"`
	ImageURL Optional[string] `json:"image_url"`
}
