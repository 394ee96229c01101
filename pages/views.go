package pages

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sevenitynet/reliefboard/backend"
	"github.com/sevenitynet/reliefboard/chat"
	"github.com/sevenitynet/reliefboard/model"
	"github.com/sevenitynet/reliefboard/request"
	"github.com/sevenitynet/reliefboard/router"
	"github.com/sevenitynet/reliefboard/session"
)

// Backend is the part of the REST API the dashboard views read.
type Backend interface {
	Donations(ctx context.Context, token string) ([]backend.Donation, error)
	CreateDonation(ctx context.Context, token string, d backend.Donation) (backend.Response, error)
	Reports(ctx context.Context, token string) ([]backend.Report, error)
	VictimReports(ctx context.Context, token string, victimID model.ID) ([]backend.Report, error)
	Locations(ctx context.Context, token string) ([]backend.Location, error)
}

// Chat is the chat room behind the chat page.
type Chat interface {
	Post(ctx context.Context, sender *model.Profile, content string) (chat.Message, error)
	Recent(n int) []chat.Message
}

// RecentMessages is how many chat messages the chat page shows.
const RecentMessages = 50

// Pages renders the views of a page table.
type Pages struct {
	table   *Table
	backend Backend
	chat    Chat
	now     func() time.Time
}

// New creates the views of t. room may be nil, which disables chat.
func New(t *Table, b Backend, room Chat) *Pages {
	return &Pages{
		table:   t,
		backend: b,
		chat:    room,
		now:     time.Now,
	}
}

// Table returns the page table.
func (p *Pages) Table() *Table {
	return p.table
}

// Register adds every page of the table to r, guarded by its roles, plus the dashboard
// actions under /api.
func (p *Pages) Register(r *router.SubRouter) {
	// The guard answers the root path with a redirect, so the handler never runs.
	r.RegisterPage(r.Guard().RootPath, func(req *pageRequest) any { return nil })

	for _, e := range p.table.Entries() {
		r.RegisterPage(e.Path, views[e.View](p, e), e.Roles...)
	}

	api := r.Router("/api")
	api.RegisterAction("/navigation", p.navigation)
	api.RegisterAction("/donations", p.createDonation, p.rolesOf("/donations")...)
	api.RegisterAction("/chat", p.postChat, p.rolesOf("/chat")...)
}

func (p *Pages) rolesOf(path string) []model.Role {
	e, _ := p.table.Lookup(path)
	return e.Roles
}

// Frame is the part every page view shares.
type Frame struct {
	Title      string         `json:"title"`
	Path       string         `json:"path"`
	User       *model.Profile `json:"user"`
	Navigation []NavSection   `json:"navigation"`
}

func (p *Pages) frame(e Entry, snap session.Snapshot) Frame {
	return Frame{
		Title:      e.Title,
		Path:       e.Path,
		User:       snap.Profile,
		Navigation: p.table.Navigation(snap.Role()),
	}
}

type pageRequest struct {
	request.GetRequest
	Ctx     *gin.Context     `gin:"true"`
	Session session.Snapshot `session:"required"`
}

// PageView is a page without data of its own.
type PageView struct {
	Frame
}

// UnauthorizedView is shown when the guard denies a page.
type UnauthorizedView struct {
	Frame
	Message string `json:"message"`
}

// AccountView shows the signed-in user's profile.
type AccountView struct {
	Frame
	Profile *model.Profile `json:"profile"`
}

// DonationsView lists donations. New opens the new-donation form.
type DonationsView struct {
	Frame
	New       bool               `json:"new"`
	Donations []backend.Donation `json:"donations"`
}

// ReportsView lists reports.
type ReportsView struct {
	Frame
	Reports []backend.Report `json:"reports"`
}

// MapView shows locations, and the reports they belong to when there are any.
type MapView struct {
	Frame
	Reports   []backend.Report   `json:"reports,omitempty"`
	Locations []backend.Location `json:"locations"`
}

// ChatView shows the latest chat messages.
type ChatView struct {
	Frame
	Enabled  bool           `json:"enabled"`
	Messages []chat.Message `json:"messages"`
}

var views = map[string]func(p *Pages, e Entry) any{
	"page":            (*Pages).pageView,
	"unauthorized":    (*Pages).unauthorizedView,
	"account":         (*Pages).accountView,
	"donations":       (*Pages).donationsView,
	"victim_index":    (*Pages).victimView,
	"volunteer_index": (*Pages).volunteerView,
	"donator_index":   (*Pages).donatorView,
	"charity_index":   (*Pages).charityView,
	"chat":            (*Pages).chatView,
}

func (p *Pages) pageView(e Entry) any {
	return func(req *pageRequest) *PageView {
		return &PageView{Frame: p.frame(e, req.Session)}
	}
}

func (p *Pages) unauthorizedView(e Entry) any {
	return func(req *pageRequest) *UnauthorizedView {
		return &UnauthorizedView{
			Frame:   p.frame(e, req.Session),
			Message: "You do not have permission to view this page.",
		}
	}
}

func (p *Pages) accountView(e Entry) any {
	return func(req *pageRequest) *AccountView {
		return &AccountView{Frame: p.frame(e, req.Session), Profile: req.Session.Profile}
	}
}

type donationsRequest struct {
	request.GetRequest
	Ctx     *gin.Context     `gin:"true"`
	Session session.Snapshot `session:"required"`
	New     bool             `query:"new" optional:"true"`
}

func (p *Pages) donationsView(e Entry) any {
	return func(req *donationsRequest) (*DonationsView, error) {
		donations, err := p.backend.Donations(req.Ctx.Request.Context(), req.Session.Token)
		if err != nil {
			return nil, err
		}

		return &DonationsView{
			Frame:     p.frame(e, req.Session),
			New:       req.New,
			Donations: nonNil(donations),
		}, nil
	}
}

func (p *Pages) victimView(e Entry) any {
	return func(req *pageRequest) (*ReportsView, error) {
		reports, err := p.backend.VictimReports(req.Ctx.Request.Context(), req.Session.Token, req.Session.UserID)
		if err != nil {
			return nil, err
		}

		return &ReportsView{Frame: p.frame(e, req.Session), Reports: nonNil(reports)}, nil
	}
}

// volunteerView shows the reports the volunteer is assigned to and where they are.
func (p *Pages) volunteerView(e Entry) any {
	return func(req *pageRequest) (*MapView, error) {
		ctx := req.Ctx.Request.Context()

		reports, err := p.backend.Reports(ctx, req.Session.Token)
		if err != nil {
			return nil, err
		}
		locations, err := p.backend.Locations(ctx, req.Session.Token)
		if err != nil {
			return nil, err
		}

		assigned := AssignedReports(reports, req.Session.UserID)
		return &MapView{
			Frame:     p.frame(e, req.Session),
			Reports:   nonNil(assigned),
			Locations: nonNil(ReportLocations(assigned, locations)),
		}, nil
	}
}

func (p *Pages) donatorView(e Entry) any {
	return func(req *pageRequest) (*MapView, error) {
		locations, err := p.backend.Locations(req.Ctx.Request.Context(), req.Session.Token)
		if err != nil {
			return nil, err
		}

		return &MapView{Frame: p.frame(e, req.Session), Locations: nonNil(locations)}, nil
	}
}

func (p *Pages) charityView(e Entry) any {
	return func(req *pageRequest) (*ReportsView, error) {
		reports, err := p.backend.Reports(req.Ctx.Request.Context(), req.Session.Token)
		if err != nil {
			return nil, err
		}

		return &ReportsView{Frame: p.frame(e, req.Session), Reports: nonNil(reports)}, nil
	}
}

func (p *Pages) chatView(e Entry) any {
	return func(req *pageRequest) *ChatView {
		view := &ChatView{Frame: p.frame(e, req.Session), Messages: []chat.Message{}}
		if p.chat != nil {
			view.Enabled = true
			view.Messages = nonNil(p.chat.Recent(RecentMessages))
		}
		return view
	}
}

// AssignedReports keeps the reports userID is a volunteer on.
func AssignedReports(reports []backend.Report, userID model.ID) []backend.Report {
	var out []backend.Report
	for _, r := range reports {
		for _, v := range r.Volunteers {
			if v.UserID == userID {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// ReportLocations keeps the locations referenced by reports.
func ReportLocations(reports []backend.Report, locations []backend.Location) []backend.Location {
	ids := make(map[model.ID]bool, len(reports))
	for _, r := range reports {
		if r.Location != nil {
			ids[r.Location.ID] = true
		}
	}

	var out []backend.Location
	for _, l := range locations {
		if ids[l.ID] {
			out = append(out, l)
		}
	}
	return out
}

type navigationRequest struct {
	request.GetRequest
	Session session.Snapshot `session:"required"`
}

func (p *Pages) navigation(req *navigationRequest) []NavSection {
	return p.table.Navigation(req.Session.Role())
}

// NewDonation is the new-donation form.
type NewDonation struct {
	DonatorName string `json:"donatorName"`
	Resource    struct {
		Name     string `json:"name"`
		Quantity int    `json:"quantity"`
	} `json:"resource"`
}

type createDonationRequest struct {
	request.PostRequest
	Ctx     *gin.Context     `gin:"true"`
	Session session.Snapshot `session:"required"`
	Body    NewDonation      `body:"true"`
}

func (p *Pages) createDonation(req *createDonationRequest) (*backend.Donation, error) {
	form := req.Body
	form.DonatorName = strings.TrimSpace(form.DonatorName)
	form.Resource.Name = strings.TrimSpace(form.Resource.Name)

	if form.DonatorName == "" || form.Resource.Name == "" || form.Resource.Quantity == 0 {
		req.Failed(http.StatusBadRequest, "empty")
	}
	if form.Resource.Quantity < 0 {
		req.Failed(http.StatusBadRequest, "quantity must be positive")
	}

	d := backend.Donation{
		Status:       backend.DonationPending,
		DonationDate: p.now().UTC(),
		Resource: backend.Resource{
			Name:     form.Resource.Name,
			Quantity: form.Resource.Quantity,
		},
	}
	d.Donator.UserID = req.Session.UserID
	d.Donator.Name = form.DonatorName

	res, err := p.backend.CreateDonation(req.Ctx.Request.Context(), req.Session.Token, d)
	if err != nil {
		return nil, err
	}
	if res.Status == backend.StatusError {
		req.Failed(http.StatusBadGateway, "error")
	}

	return &d, nil
}

type postChatRequest struct {
	request.PostRequest
	Ctx     *gin.Context     `gin:"true"`
	Session session.Snapshot `session:"required"`
	Body    struct {
		Content string `json:"content"`
	} `body:"true"`
}

func (p *Pages) postChat(req *postChatRequest) (*chat.Message, error) {
	if p.chat == nil {
		req.Failed(http.StatusServiceUnavailable, "chat is disabled")
	}

	msg, err := p.chat.Post(req.Ctx.Request.Context(), req.Session.Profile, req.Body.Content)
	switch {
	case err == nil:
		return &msg, nil
	case errors.Is(err, chat.ErrNoProfile):
		req.Failed(http.StatusConflict, "profile not loaded yet")
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrMessageTooLong):
		req.Failed(http.StatusBadRequest, err.Error())
	}
	return nil, err
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
