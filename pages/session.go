package pages

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sevenitynet/reliefboard/backend"
	"github.com/sevenitynet/reliefboard/request"
	"github.com/sevenitynet/reliefboard/router"
	"github.com/sevenitynet/reliefboard/session"
)

// RegisterSession adds the public login and sign-up pages and the session actions.
func (p *Pages) RegisterSession(r *router.SubRouter) {
	loginPath := r.Guard().LoginPath

	r.RegisterPublic(loginPath, p.loginPage)
	r.RegisterPublic("/signup", p.signUpPage)

	api := r.Router("/api")
	api.RegisterPublic("/login", p.logIn)
	api.RegisterPublic("/signup", p.signUp)
	api.RegisterPublic("/logout", p.logOut)
}

// SafeRedirect returns target when it is a path on this site, and "/" otherwise.
// Browsers drop tabs and newlines from URLs and read a backslash as "/", so a target
// holding either is refused outright.
func SafeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return "/"
	}
	if strings.ContainsFunc(target, func(r rune) bool { return r < 0x20 || r == 0x7f || r == '\\' }) {
		return "/"
	}
	if u, err := url.Parse(target); err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "/"
	}
	return target
}

// LoginView is the login page of a client without a session.
type LoginView struct {
	Title    string `json:"title"`
	Redirect string `json:"redirect"`
}

type loginPageRequest struct {
	request.GetRequest
	Session  session.Snapshot `session:"optional"`
	Redirect string           `query:"redirect" optional:"true"`
}

// loginPage sends an already authenticated client on to where it was going.
func (p *Pages) loginPage(req *loginPageRequest) *LoginView {
	target := SafeRedirect(req.Redirect)
	if req.Session.Authenticated() {
		req.Request.Redirect(target)
	}

	return &LoginView{Title: "Log in", Redirect: target}
}

type signUpPageRequest struct {
	request.GetRequest
	Session session.Snapshot `session:"optional"`
}

func (p *Pages) signUpPage(req *signUpPageRequest) *LoginView {
	if req.Session.Authenticated() {
		req.Request.Redirect("/")
	}

	return &LoginView{Title: "Sign up", Redirect: "/"}
}

// SessionResponse answers the session actions.
type SessionResponse struct {
	Status   session.Status `json:"status"`
	Redirect string         `json:"redirect,omitempty"`
}

type logInRequest struct {
	request.PostRequest
	Ctx   *gin.Context   `gin:"true"`
	Store *session.Store `session:"optional"`
	Body  struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Redirect string `json:"redirect"`
	} `body:"true"`
}

func (p *Pages) logIn(req *logInRequest) *SessionResponse {
	store := requireStore(req.Request, req.Store)

	if store.LogIn(req.Ctx.Request.Context(), req.Body.Email, req.Body.Password) != session.StatusSuccess {
		req.Failed(http.StatusUnauthorized, string(session.StatusError))
	}

	return &SessionResponse{Status: session.StatusSuccess, Redirect: SafeRedirect(req.Body.Redirect)}
}

type signUpRequest struct {
	request.PostRequest
	Ctx   *gin.Context          `gin:"true"`
	Store *session.Store        `session:"optional"`
	Body  backend.SignUpRequest `body:"true"`
}

// signUp registers the account without logging in.
func (p *Pages) signUp(req *signUpRequest) *SessionResponse {
	store := requireStore(req.Request, req.Store)

	if store.SignUp(req.Ctx.Request.Context(), req.Body) != session.StatusSuccess {
		req.Failed(http.StatusBadRequest, string(session.StatusError))
	}

	return &SessionResponse{Status: session.StatusSuccess, Redirect: "/login"}
}

type logOutRequest struct {
	request.PostRequest
	Ctx   *gin.Context   `gin:"true"`
	Store *session.Store `session:"optional"`
}

func (p *Pages) logOut(req *logOutRequest) *SessionResponse {
	if req.Store != nil {
		req.Store.LogOut(req.Ctx.Request.Context())
	}
	return &SessionResponse{Status: session.StatusSuccess, Redirect: "/login"}
}

func requireStore(req request.Request, store *session.Store) *session.Store {
	if store == nil {
		req.Failed(http.StatusInternalServerError, "no client session")
	}
	return store
}
