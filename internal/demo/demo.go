// Package demo is the sample application served by "feasp serve": a handful
// of views covering strings, JSON, templates, redirects, cookies, a login
// form backed by SQLite and a session counter.
package demo

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	"github.com/conneroisu/feasp/internal/config"
	"github.com/conneroisu/feasp/internal/logging"
	"github.com/conneroisu/feasp/internal/session"
	"github.com/conneroisu/feasp/internal/sqlstore"
	"github.com/conneroisu/feasp/pkg/feasp"
)

//go:embed assets
var assets embed.FS

const usersTable = "users"

// DefaultUser is seeded into the users table.
var DefaultUser = struct{ Name, Password string }{"XueFeng", "123456789"}

// Demo is the assembled application and the resources it owns.
type Demo struct {
	App      *feasp.App
	Sessions *session.Manager
	Users    *sqlstore.Store

	logger logging.Logger
}

// Assets returns the demo's templates/ and static/ tree. Files below root
// on disk take precedence over the embedded copies; an empty root means
// the embedded assets alone.
func Assets(root string) fs.FS {
	embedded, err := fs.Sub(assets, "assets")
	if err != nil {
		panic(err)
	}
	if root == "" {
		return embedded
	}
	return overlayFS{upper: os.DirFS(root), lower: embedded}
}

// New builds the demo application from cfg.
func New(cfg *config.Config, logger logging.Logger) (*Demo, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.Nop()
	}

	users, err := sqlstore.Open(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := seedUsers(context.Background(), users); err != nil {
		users.Close()
		return nil, err
	}

	sessions := session.NewManager(session.Config{
		CookieName:    cfg.Session.CookieName,
		Timeout:       cfg.Session.Timeout,
		PurgeInterval: cfg.Session.PurgeInterval,
		Logger:        logger,
	})

	app := feasp.New(Assets(cfg.App.Root),
		feasp.WithLogger(logger),
		feasp.WithSessions(sessions),
		feasp.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		feasp.WithDebug(cfg.IsDevelopment()),
		feasp.WithTemplateDir(cfg.App.TemplateDir),
		feasp.WithStaticDir(cfg.App.StaticDir),
	)

	d := &Demo{
		App:      app,
		Sessions: sessions,
		Users:    users,
		logger:   logger.WithComponent("demo"),
	}
	d.register()
	return d, nil
}

// Run purges idle sessions until ctx is done.
func (d *Demo) Run(ctx context.Context) {
	d.Sessions.Run(ctx)
}

// Close releases the user database.
func (d *Demo) Close() error {
	return d.Users.Close()
}

func (d *Demo) register() {
	app := d.App

	app.GET("/", d.index)
	app.GET("/string", func(*feasp.Context) (any, error) {
		return "Hello String", nil
	})
	app.GET("/dict", func(*feasp.Context) (any, error) {
		return map[string]string{"H": "L", "P": "D"}, nil
	})
	app.GET("/list", func(*feasp.Context) (any, error) {
		return []string{"A", "P", "k", "G"}, nil
	})
	app.GET("/image", func(c *feasp.Context) (any, error) {
		return c.Render("image.html", nil)
	})
	app.GET("/redirect", func(c *feasp.Context) (any, error) {
		return c.RedirectTo("index")
	})
	app.GET("/show_cookies", showCookies)
	app.GET("/set_cookies", setCookies)
	app.Route("/login", d.login, http.MethodGet, http.MethodPost)
	app.GET("/variable/<string:name>", func(c *feasp.Context) (any, error) {
		return c.Render("variable.html", map[string]any{"name": c.Param("name")})
	}).Name("show_variable")
	app.GET("/for_list", func(c *feasp.Context) (any, error) {
		return c.Render("for_list.html", map[string]any{
			"names": []string{"XueFeng", "XueXue", "XueLian"},
		})
	})
	app.GET("/make_resp", func(*feasp.Context) (any, error) {
		return feasp.MakeResponse("Hello MakeResponse", "text/html", http.StatusOK), nil
	})
	app.GET("/counter", counter)
}

func (d *Demo) index(c *feasp.Context) (any, error) {
	return c.Render("index.html", map[string]any{
		"title":  "Feasp",
		"routes": c.App().Routes(),
	})
}

// demoCookies are set and shown in this order.
var demoCookies = []struct{ Name, Value string }{
	{"Name", "XueFeng"},
	{"Hobby", "WriteCode"},
}

func showCookies(c *feasp.Context) (any, error) {
	var out string
	for _, dc := range demoCookies {
		v, ok := c.Cookie(dc.Name)
		if !ok {
			continue
		}
		if out != "" {
			out += ";"
		}
		out += dc.Name + "=" + v
	}
	if out == "" {
		return "No Cookies", nil
	}
	return out, nil
}

func setCookies(c *feasp.Context) (any, error) {
	for _, dc := range demoCookies {
		c.SetCookie(dc.Name, dc.Value, feasp.CookiePath("/"))
	}
	return "Set Cookies", nil
}

func (d *Demo) login(c *feasp.Context) (any, error) {
	if c.Request.Method != http.MethodPost {
		return c.Render("login.html", nil)
	}

	username := c.Form("username")
	d.logger.Debug(c.Context(), "login attempt", "form", logging.SanitizeMap(c.Request.Form))
	ok, err := d.checkUser(c.Context(), username, c.Form("password"))
	if err != nil {
		return nil, err
	}
	if !ok {
		d.logger.Info(c.Context(), "login rejected", "username", username)
		resp, err := c.Render("login.html", map[string]any{
			"message":  "Your username or password is wrong !",
			"username": username,
		})
		if err != nil {
			return nil, err
		}
		resp.Status = http.StatusUnauthorized
		return resp, nil
	}

	if s := c.Session(); s != nil {
		s.Set("user", username)
	}
	return "Your login correctly !", nil
}

func counter(c *feasp.Context) (any, error) {
	var count int
	ok := c.UpdateSession(func(values map[string]any) {
		n, _ := values["count"].(int)
		count = n + 1
		values["count"] = count
	})
	if !ok {
		return nil, fmt.Errorf("sessions are not configured")
	}

	return c.Render("counter.html", map[string]any{"count": count})
}

func seedUsers(ctx context.Context, users *sqlstore.Store) error {
	if err := users.CreateTable(ctx, usersTable, []string{"name", "password_hash"}); err != nil {
		return err
	}
	row, err := users.QueryRow(ctx, usersTable, map[string]any{"name": DefaultUser.Name})
	if err != nil {
		return err
	}
	if row != nil {
		return nil
	}
	return users.Insert(ctx, usersTable, DefaultUser.Name, hashPassword(DefaultUser.Password))
}

func (d *Demo) checkUser(ctx context.Context, name, password string) (bool, error) {
	if name == "" || password == "" {
		return false, nil
	}
	row, err := d.Users.QueryRow(ctx, usersTable, map[string]any{
		"name":          name,
		"password_hash": hashPassword(password),
	})
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
