package api

import (
	"context"
	"net/http"
	"net/url"
)

// MediaService wraps the on-demand media endpoints.
type MediaService struct {
	c *Client
}

// Media returns the media service.
func (c *Client) Media() *MediaService {
	return &MediaService{c: c}
}

// Media is an on-demand video or audio item.
type Media struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnailUrl"`
	StreamURL    string `json:"streamUrl"`
	Duration     int    `json:"duration"`
	Views        int    `json:"views"`
	UploadedBy   string `json:"uploadedBy"`
	UploadedAt   string `json:"uploadedAt"`
}

// Comment is a comment on a media item.
type Comment struct {
	ID        string `json:"id"`
	MediaID   string `json:"mediaId"`
	Author    string `json:"author"`
	Avatar    string `json:"avatar,omitempty"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// List lists media items.
func (s *MediaService) List(ctx context.Context) ([]Media, error) {
	var items []Media
	if err := s.c.Do(ctx, http.MethodGet, "/media", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Get fetches one media item.
func (s *MediaService) Get(ctx context.Context, id string) (Media, error) {
	var item Media
	err := s.c.Do(ctx, http.MethodGet, "/media/"+url.PathEscape(id), nil, &item)
	return item, err
}

// Comments fetches the comments on a media item.
func (s *MediaService) Comments(ctx context.Context, mediaID string) ([]Comment, error) {
	var comments []Comment
	err := s.c.Do(ctx, http.MethodGet, "/comments/"+url.PathEscape(mediaID), nil, &comments)
	return comments, err
}

// AddComment posts a comment on a media item.
func (s *MediaService) AddComment(ctx context.Context, mediaID, content string) (Comment, error) {
	var comment Comment
	err := s.c.Do(ctx, http.MethodPost, "/comments",
		map[string]string{"mediaId": mediaID, "content": content}, &comment)
	return comment, err
}
