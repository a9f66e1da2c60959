package dto

// PublishRequest: payload for publishing a notification event
type PublishRequest struct {
	UserID  string `json:"user_id" binding:"required,uuid"`
	Kind    string `json:"kind" binding:"required"`
	Title   string `json:"title" binding:"required,max=200"`
	Message string `json:"message" binding:"required,max=2000"`
	RefType string `json:"ref_type,omitempty"`
	RefID   int64  `json:"ref_id,omitempty"`
}

// ListQuery: pagination parameters for the notification list
type ListQuery struct {
	Page int `form:"page,default=0" binding:"min=0"`
	Size int `form:"size,default=20" binding:"min=1,max=100"`
}
