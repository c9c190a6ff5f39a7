package posts

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/crucial707/radar/cmd/cli/client"
	"github.com/crucial707/radar/cmd/cli/output"
	"github.com/crucial707/radar/internal/models"
	"github.com/spf13/cobra"
)

// ==========================
// Init Posts
// ==========================
func InitPosts(rootCmd *cobra.Command) {
	postsCmd := &cobra.Command{
		Use:   "posts",
		Short: "Read and publish posts",
	}

	postsCmd.AddCommand(
		listPostsCmd(),
		getPostCmd(),
		createPostCmd(),
		updatePostCmd(),
		deletePostCmd(),
		byUserCmd(),
	)

	rootCmd.AddCommand(postsCmd)
}

// ==========================
// LIST
// ==========================
func listPostsCmd() *cobra.Command {
	var skip, limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List posts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("skip", strconv.Itoa(skip))
			q.Set("limit", strconv.Itoa(limit))

			var posts []models.Post
			if err := client.New().JSON("GET", "/posts?"+q.Encode(), nil, &posts); err != nil {
				return err
			}
			return renderPosts(posts, asJSON)
		},
	}
	cmd.Flags().IntVar(&skip, "skip", 0, "Number of posts to skip")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum posts to return (1-100)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

// ==========================
// GET
// ==========================
func getPostCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "post")
			if err != nil {
				return err
			}
			var post models.Post
			if err := client.New().JSON("GET", "/posts/"+strconv.Itoa(id), nil, &post); err != nil {
				return err
			}
			if asJSON {
				return output.RenderJSON(post)
			}
			renderPostDetail(post)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

// ==========================
// CREATE
// ==========================
func createPostCmd() *cobra.Command {
	var title, content, file string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Publish a post, optionally with an image",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New()
			if err := c.RequireToken(); err != nil {
				return err
			}
			fields := map[string]string{"content": content}
			if cmd.Flags().Changed("title") {
				fields["title"] = title
			}
			var post models.Post
			if err := c.Multipart("/posts", fields, file, &post); err != nil {
				return err
			}
			if asJSON {
				return output.RenderJSON(post)
			}
			fmt.Printf("Post %d created.\n", post.ID)
			if post.ImageURL != nil {
				fmt.Println("Image:", c.BaseURL+*post.ImageURL)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Post title")
	cmd.Flags().StringVar(&content, "content", "", "Post body")
	cmd.Flags().StringVar(&file, "file", "", "Path of an image to attach")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

// ==========================
// UPDATE
// ==========================
func updatePostCmd() *cobra.Command {
	var title, content string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit one of your posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "post")
			if err != nil {
				return err
			}
			payload := map[string]string{}
			if cmd.Flags().Changed("title") {
				payload["title"] = title
			}
			if cmd.Flags().Changed("content") {
				payload["content"] = content
			}
			if len(payload) == 0 {
				return fmt.Errorf("nothing to update: pass --title or --content")
			}

			c := client.New()
			if err := c.RequireToken(); err != nil {
				return err
			}
			var post models.Post
			if err := c.JSON("PUT", "/posts/"+strconv.Itoa(id), payload, &post); err != nil {
				return err
			}
			if asJSON {
				return output.RenderJSON(post)
			}
			renderPostDetail(post)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&content, "content", "", "New body")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

// ==========================
// DELETE
// ==========================
func deletePostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one of your posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "post")
			if err != nil {
				return err
			}
			c := client.New()
			if err := c.RequireToken(); err != nil {
				return err
			}
			if err := c.JSON("DELETE", "/posts/"+strconv.Itoa(id), nil, nil); err != nil {
				return err
			}
			fmt.Printf("Post %d deleted.\n", id)
			return nil
		},
	}
}

// ==========================
// BY USER
// ==========================
func byUserCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "by-user <userId>",
		Short: "List all posts of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "user")
			if err != nil {
				return err
			}
			var posts []models.Post
			if err := client.New().JSON("GET", "/posts/user/"+strconv.Itoa(id), nil, &posts); err != nil {
				return err
			}
			return renderPosts(posts, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func parseID(s, kind string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", kind, s)
	}
	return id, nil
}

func renderPosts(posts []models.Post, asJSON bool) error {
	if asJSON {
		return output.RenderJSON(posts)
	}
	rows := make([][]interface{}, 0, len(posts))
	for _, p := range posts {
		author := strconv.Itoa(p.AuthorID)
		if p.Author != nil {
			author = p.Author.Username
		}
		rows = append(rows, []interface{}{
			p.ID,
			output.Truncate(output.Deref(p.Title), 30),
			output.Truncate(p.Content, 50),
			author,
			p.ImageURL != nil,
			p.CreatedAt.Format(time.RFC3339),
		})
	}
	output.RenderTable([]string{"ID", "Title", "Content", "Author", "Image", "Created"}, rows)
	return nil
}

func renderPostDetail(p models.Post) {
	author := strconv.Itoa(p.AuthorID)
	if p.Author != nil {
		author = fmt.Sprintf("%s (%d)", p.Author.Username, p.AuthorID)
	}
	updated := "-"
	if p.UpdatedAt != nil {
		updated = p.UpdatedAt.Format(time.RFC3339)
	}
	output.RenderTable([]string{"Field", "Value"}, [][]interface{}{
		{"ID", p.ID},
		{"Title", output.Deref(p.Title)},
		{"Content", p.Content},
		{"Image", output.Deref(p.ImageURL)},
		{"Author", author},
		{"Created", p.CreatedAt.Format(time.RFC3339)},
		{"Updated", updated},
	})
}
