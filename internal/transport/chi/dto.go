package chi

import (
	"time"

	domitem "github.com/trackback/matchengine/internal/domain/item"
	dommatch "github.com/trackback/matchengine/internal/domain/match"
	itemuc "github.com/trackback/matchengine/internal/usecase/item"
)

// Error codes returned in error responses.
const (
	codeBadRequest             = "bad_request"
	codeValidationFailed       = "validation_failed"
	codeItemNotFound           = "item_not_found"
	codeMatchNotFound          = "match_not_found"
	codeItemArchived           = "item_archived"
	codeKindMismatch           = "kind_mismatch"
	codeInvalidStateTransition = "invalid_state_transition"
	codeInternalError          = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type contactRequest struct {
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Preferred string `json:"preferred,omitempty"`
}

type createItemRequest struct {
	Kind           string         `json:"kind"`
	ReporterID     string         `json:"reporter_id"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Category       string         `json:"category,omitempty"`
	Address        string         `json:"address,omitempty"`
	Lat            *float64       `json:"lat,omitempty"`
	Lon            *float64       `json:"lon,omitempty"`
	EventDate      *time.Time     `json:"event_date,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	Contact        contactRequest `json:"contact,omitempty"`
	Reward         float64        `json:"reward,omitempty"`
	Images         []string       `json:"images,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
}

type patchItemRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Category    *string    `json:"category,omitempty"`
	Address     *string    `json:"address,omitempty"`
	Lat         *float64   `json:"lat,omitempty"`
	Lon         *float64   `json:"lon,omitempty"`
	EventDate   *time.Time `json:"event_date,omitempty"`
	Tags        *[]string  `json:"tags,omitempty"`
	Reward      *float64   `json:"reward,omitempty"`
	Images      *[]string  `json:"images,omitempty"`
}

type verifyRequest struct {
	VerifierID string `json:"verifier_id"`
}

// itemResponse deliberately excludes reporter contact details; those leave
// the engine only through the disclosure gate.
type itemResponse struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Status         string    `json:"status"`
	ReporterID     string    `json:"reporter_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Category       string    `json:"category,omitempty"`
	Address        string    `json:"address,omitempty"`
	Lat            *float64  `json:"lat,omitempty"`
	Lon            *float64  `json:"lon,omitempty"`
	EventDate      time.Time `json:"event_date"`
	ReportedAt     time.Time `json:"reported_at"`
	Tags           []string  `json:"tags,omitempty"`
	Reward         float64   `json:"reward,omitempty"`
	Images         []string  `json:"images,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
}

type itemListResponse struct {
	Items []itemResponse `json:"items"`
	Total int            `json:"total"`
}

type matchResponse struct {
	ID          string    `json:"id"`
	LostItemID  string    `json:"lost_item_id"`
	FoundItemID string    `json:"found_item_id"`
	Score       int       `json:"score"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	VerifiedBy  string    `json:"verified_by,omitempty"`
}

type matchListResponse struct {
	Items []matchResponse `json:"items"`
	Total int             `json:"total"`
}

type statsResponse struct {
	Items   map[string]int `json:"items"`
	Matches matchStats     `json:"matches"`
}

type matchStats struct {
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
	Rejected  int `json:"rejected"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func draftFromRequest(req createItemRequest) itemuc.Draft {
	d := itemuc.Draft{
		Kind:        domitem.Kind(req.Kind),
		ReporterID:  req.ReporterID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Address:     req.Address,
		Lat:         req.Lat,
		Lon:         req.Lon,
		Tags:        req.Tags,
		Contact: domitem.Contact{
			Email:     req.Contact.Email,
			Phone:     req.Contact.Phone,
			Preferred: req.Contact.Preferred,
		},
		Reward:         req.Reward,
		Images:         req.Images,
		OrganizationID: req.OrganizationID,
	}
	if req.EventDate != nil {
		d.EventDate = req.EventDate.UTC()
	}
	return d
}

func updateFromRequest(req patchItemRequest) itemuc.Update {
	u := itemuc.Update{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Address:     req.Address,
		Lat:         req.Lat,
		Lon:         req.Lon,
		Tags:        req.Tags,
		Reward:      req.Reward,
		Images:      req.Images,
	}
	if req.EventDate != nil {
		t := req.EventDate.UTC()
		u.EventDate = &t
	}
	return u
}

func itemToResponse(it *domitem.Item) itemResponse {
	resp := itemResponse{
		ID:             it.ID(),
		Kind:           string(it.Kind()),
		Status:         string(it.Status()),
		ReporterID:     it.ReporterID(),
		Title:          it.Title(),
		Description:    it.Description(),
		Category:       it.Category(),
		Address:        it.Location().Address(),
		EventDate:      it.EventDate(),
		ReportedAt:     it.ReportedAt(),
		Tags:           it.Tags(),
		Reward:         it.Reward(),
		Images:         it.Images(),
		OrganizationID: it.OrganizationID(),
	}
	if lat, lon, ok := it.Location().Coordinates(); ok {
		resp.Lat = &lat
		resp.Lon = &lon
	}
	return resp
}

func itemsToResponse(items []domitem.Item) itemListResponse {
	out := make([]itemResponse, len(items))
	for i := range items {
		out[i] = itemToResponse(&items[i])
	}
	return itemListResponse{Items: out, Total: len(out)}
}

func matchToResponse(m *dommatch.Match) matchResponse {
	return matchResponse{
		ID:          m.ID(),
		LostItemID:  m.LostItemID(),
		FoundItemID: m.FoundItemID(),
		Score:       m.Score(),
		Status:      string(m.Status()),
		CreatedAt:   m.CreatedAt(),
		VerifiedBy:  m.VerifiedBy(),
	}
}

func matchesToResponse(matches []dommatch.Match) matchListResponse {
	out := make([]matchResponse, len(matches))
	for i := range matches {
		out[i] = matchToResponse(&matches[i])
	}
	return matchListResponse{Items: out, Total: len(out)}
}
