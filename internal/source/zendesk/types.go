package zendesk

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nhle/helpdesk-sync/internal/model"
)

// listPage is the envelope shared by the offset-paginated list endpoints.
// The collection itself lives under an endpoint-specific key.
type listPage struct {
	NextPage *string `json:"next_page"`
	Count    int     `json:"count"`
}

// incrementalPage is the response from GET /api/v2/exports/tickets.json.
// The export lists tickets under "results"; "tickets" is accepted too.
type incrementalPage struct {
	Results     []model.Attributes `json:"results"`
	Tickets     []model.Attributes `json:"tickets"`
	NextPage    *string            `json:"next_page"`
	Count       int                `json:"count"`
	EndTime     json.Number        `json:"end_time"`
	EndOfStream bool               `json:"end_of_stream"`
}

func (p incrementalPage) items() []model.Attributes {
	if len(p.Results) > 0 {
		return p.Results
	}
	return p.Tickets
}

// ticketField is one entry of GET /api/v2/ticket_fields.json.
type ticketField struct {
	ID    json.Number `json:"id"`
	Title string      `json:"title"`
}

// ticketFieldPage is the response from GET /api/v2/ticket_fields.json.
type ticketFieldPage struct {
	TicketFields []ticketField `json:"ticket_fields"`
	NextPage     *string       `json:"next_page"`
}

// me is the response from GET /api/v2/users/me.json. An unauthenticated
// caller gets an anonymous user with a null id.
type me struct {
	User struct {
		ID    *json.Number `json:"id"`
		Name  string       `json:"name"`
		Email string       `json:"email"`
		Role  string       `json:"role"`
	} `json:"user"`
}

// APIError is a non-2xx response from the helpdesk API.
type APIError struct {
	StatusCode  int
	Method      string
	Path        string
	Title       string
	Description string
}

func (e *APIError) Error() string {
	msg := e.Title
	if e.Description != "" {
		if msg != "" {
			msg += ": "
		}
		msg += e.Description
	}
	if msg == "" {
		msg = "no error details"
	}
	return fmt.Sprintf(
		"helpdesk API error (%d) on %s %s: %s",
		e.StatusCode, e.Method, e.Path, msg,
	)
}

// tooRecent reports whether the error is the incremental export's refusal
// of a start time that is too close to now.
func (e *APIError) tooRecent() bool {
	text := strings.ToLower(e.Title + " " + e.Description)
	return strings.Contains(text, "too recent") ||
		strings.Contains(text, "starttimetoorecent")
}

// errorBody covers both error shapes the API uses:
//
//	{"error": "InvalidValue", "description": "..."}
//	{"error": {"title": "...", "message": "..."}}
type errorBody struct {
	Error       json.RawMessage `json:"error"`
	Description string          `json:"description"`
}

// parseAPIError builds an APIError from a response body, tolerating
// bodies that are not JSON.
func parseAPIError(status int, method, path string, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Method: method, Path: path}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		apiErr.Description = strings.TrimSpace(string(body))
		return apiErr
	}

	apiErr.Description = eb.Description

	var title string
	if json.Unmarshal(eb.Error, &title) == nil {
		apiErr.Title = title
		return apiErr
	}

	var nested struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	if json.Unmarshal(eb.Error, &nested) == nil {
		apiErr.Title = nested.Title
		if apiErr.Description == "" {
			apiErr.Description = nested.Message
		}
	}

	return apiErr
}
