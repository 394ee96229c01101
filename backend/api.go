package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sevenitynet/reliefboard/model"
)

// Status is the outcome field carried by backend responses.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Endpoints are the backend paths used by the dashboard. Paths containing {id} are expanded per call.
type Endpoints struct {
	Login          string
	SignUp         string
	User           string
	Donations      string
	CreateDonation string
	Reports        string
	VictimReports  string
	Locations      string
}

// DefaultEndpoints returns the paths served by the relief backend.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Login:          "/api/login",
		SignUp:         "/api/signup",
		User:           "/api/user/{id}",
		Donations:      "/donation",
		CreateDonation: "/api/donation",
		Reports:        "/report/",
		VictimReports:  "/report/victim/{id}",
		Locations:      "/api/locations/getAllLocations",
	}
}

func expand(path string, id model.ID) string {
	return strings.ReplaceAll(path, "{id}", url.PathEscape(string(id)))
}

// Response is the minimal body of a mutating backend call.
type Response struct {
	Status Status `json:"status"`
}

// LoginResponse is returned by the login endpoint.
type LoginResponse struct {
	Status Status   `json:"status"`
	Token  string   `json:"token"`
	ID     model.ID `json:"id"`
}

// SignUpRequest is the registration payload.
type SignUpRequest struct {
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Role      model.Role `json:"role"`
	Email     string     `json:"email"`
	Password  string     `json:"password"`
	Phone     string     `json:"phone"`
}

// DonationStatus is the lifecycle state of a donation.
type DonationStatus string

const (
	DonationPending   DonationStatus = "PENDING"
	DonationAccepted  DonationStatus = "ACCEPTED"
	DonationCompleted DonationStatus = "COMPLETED"
)

// Donation is a resource offered by a donator.
type Donation struct {
	ID      int64 `json:"donation_id"`
	Donator struct {
		UserID model.ID `json:"userId"`
		Name   string   `json:"name"`
	} `json:"donator"`
	Status       DonationStatus `json:"status"`
	DonationDate time.Time      `json:"donationDate"`
	AcceptDate   *time.Time     `json:"acceptDate"`
	Resource     Resource       `json:"resource"`
}

// Resource is a quantity of a named good.
type Resource struct {
	ID       int64  `json:"resourceId,omitempty"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Volunteer is a volunteer assigned to a report.
type Volunteer struct {
	UserID model.ID `json:"userId"`
	Name   string   `json:"name,omitempty"`
}

// Report is an aid request filed by a victim.
type Report struct {
	ID         model.ID    `json:"report_id"`
	Category   string      `json:"category"`
	Status     string      `json:"status"`
	ReportDate string      `json:"report_date"`
	Volunteers []Volunteer `json:"volunteers,omitempty"`
	Location   *Location   `json:"location,omitempty"`
}

// Location is a point on the relief map.
type Location struct {
	ID        model.ID `json:"location_id"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	City      string   `json:"city,omitempty"`
	Street    string   `json:"street,omitempty"`
	Number    string   `json:"number,omitempty"`
	ZipCode   string   `json:"zipCode,omitempty"`
}

// Login exchanges credentials for a token and user id.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	var res LoginResponse
	err := c.Do(ctx, http.MethodPost, c.endpoints.Login, map[string]string{
		"email":    email,
		"password": password,
	}, "", &res)
	return res, err
}

// SignUp registers a new account.
func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (Response, error) {
	var res Response
	err := c.Do(ctx, http.MethodPost, c.endpoints.SignUp, req, "", &res)
	return res, err
}

// User fetches the profile of the given user.
func (c *Client) User(ctx context.Context, token string, id model.ID) (model.Profile, error) {
	var p model.Profile
	err := c.Do(ctx, http.MethodGet, expand(c.endpoints.User, id), nil, token, &p)
	return p, err
}

// Donations lists donations visible to the caller.
func (c *Client) Donations(ctx context.Context, token string) ([]Donation, error) {
	var res []Donation
	err := c.Do(ctx, http.MethodGet, c.endpoints.Donations, nil, token, &res)
	return res, err
}

// CreateDonation submits a new donation.
func (c *Client) CreateDonation(ctx context.Context, token string, d Donation) (Response, error) {
	var res Response
	err := c.Do(ctx, http.MethodPost, c.endpoints.CreateDonation, d, token, &res)
	return res, err
}

// Reports lists all reports.
func (c *Client) Reports(ctx context.Context, token string) ([]Report, error) {
	var res []Report
	err := c.Do(ctx, http.MethodGet, c.endpoints.Reports, nil, token, &res)
	return res, err
}

// VictimReports lists the reports filed by a victim.
func (c *Client) VictimReports(ctx context.Context, token string, victimID model.ID) ([]Report, error) {
	var res []Report
	err := c.Do(ctx, http.MethodGet, expand(c.endpoints.VictimReports, victimID), nil, token, &res)
	return res, err
}

// Locations lists the map locations.
func (c *Client) Locations(ctx context.Context, token string) ([]Location, error) {
	var res []Location
	err := c.Do(ctx, http.MethodGet, c.endpoints.Locations, nil, token, &res)
	return res, err
}
