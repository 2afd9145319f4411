package dto

// ActionRequest carries the inbound question. It binds from the query
// string, a form body or a JSON body.
type ActionRequest struct {
	UserID   string `form:"userId" json:"userId"`
	Question string `form:"question" json:"question"`
}

// ActionOKResponse is the success body. LocalAnswer and Links are null when
// the job completed without them.
type ActionOKResponse struct {
	Status      string   `json:"status"`
	LocalAnswer *string  `json:"localAnswer"`
	Links       []string `json:"links"`
}

// ActionErrorResponse is the failure body
type ActionErrorResponse struct {
	Status string `json:"status"`
	Answer string `json:"answer"`
}

// ProgressEvent is the payload of a streamed status event
type ProgressEvent struct {
	Stage   string `json:"stage"`
	JobID   string `json:"job_id,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
}

// CompleteEvent ends a stream
type CompleteEvent struct {
	Status string `json:"status"`
	JobID  string `json:"job_id,omitempty"`
}

type ListJobsRequest struct {
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID     string   `json:"job_id"`
	Owner     string   `json:"owner"`
	Status    string   `json:"status"`
	Request   string   `json:"request"`
	Result    *string  `json:"result"`
	Links     []string `json:"links"`
	CreatedAt string   `json:"created_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
