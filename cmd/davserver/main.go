// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.

// Command davserver is the reference WebDAV 1/2 server built on davcore's
// dav.Handler, mounted on the touka HTTP framework the way
// _examples/infinite-iroha-touka/examples/webdav/main.go mounts its own
// (much smaller) webdav.Handler: a fixed method list bound to a catch-all
// route, wrapped in the framework's recovery, gzip, and request-size
// middleware, and started through RunShutdown for graceful termination.
package main

import (
	"compress/gzip"
	"context"
	"flag"
	"os"
	"time"

	"github.com/fenthope/reco"
	"github.com/go-json-experiment/json"

	"github.com/infinite-iroha/davcore/dav"
	"github.com/infinite-iroha/davcore/dav/locks"
	"github.com/infinite-iroha/davcore/dav/osfs"
	"github.com/infinite-iroha/davcore/touka"
)

// config is davserver's on-disk configuration, loaded with the same
// go-json-experiment/json the teacher uses for its own request/response
// bodies (context.go's ShouldBindJSON/JSON), per SPEC_FULL.md §6.
type config struct {
	ListenAddr             string            `json:"listen_addr"`
	RootDir                string            `json:"root_dir"`
	MaxUploadBytes         int64             `json:"max_upload_bytes"`
	DefaultLockTimeoutSecs int64             `json:"default_lock_timeout_seconds"`
	MaxLockTimeoutSecs     int64             `json:"max_lock_timeout_seconds"`
	ShutdownTimeoutSecs    int64             `json:"shutdown_timeout_seconds"`
	LogLevel               string            `json:"log_level"`
	LogMode                string            `json:"log_mode"`
	// Credentials maps a Basic-Auth username to password. Empty means no
	// principal is ever required (every caller authorizes as "").
	Credentials map[string]string `json:"credentials"`
}

func defaultConfig() config {
	return config{
		ListenAddr:             ":8080",
		RootDir:                "./public",
		MaxUploadBytes:         256 << 20, // 256 MiB
		DefaultLockTimeoutSecs: 300,
		MaxLockTimeoutSecs:     24 * 60 * 60,
		ShutdownTimeoutSecs:    10,
		LogLevel:               "info",
		LogMode:                "text",
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()
	if err := json.UnmarshalRead(f, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// recoLevel maps a config string to a reco.Level. Only LevelInfo is
// grounded in the pack (logreco.go's defaultLogRecoConfig); unrecognized
// or unconfigured values fall back to it rather than guessing at
// constants the corpus never exercises.
func recoLevel(name string) reco.Level {
	_ = name
	return reco.LevelInfo
}

// recoMode maps a config string to a reco.Mode. Only ModeText is
// grounded in the pack; see recoLevel.
func recoMode(name string) reco.Mode {
	_ = name
	return reco.ModeText
}

// credentialAuthorizer grants every method once a principal has been
// established by basicAuthMiddleware, per spec.md §6's AuthorizationFilter
// contract (authentication happens upstream; this only authorizes). An
// empty credentials map means the server runs open, so Authorize always
// allows an empty principal too.
type credentialAuthorizer struct {
	requireAuth bool
}

func (a credentialAuthorizer) Authorize(ctx context.Context, principal string, r dav.Resource, method string) dav.Authorization {
	if a.requireAuth && principal == "" {
		return dav.Deny
	}
	return dav.Allow
}

// basicAuthMiddleware validates RFC 7617 Basic credentials against the
// configured map and attaches the resulting principal to the request
// context via dav.WithPrincipal, mirroring the teacher's own preference
// for context-scoped request state (context.go's Keys map) over ad hoc
// globals.
func basicAuthMiddleware(creds map[string]string) touka.HandlerFunc {
	return func(c *touka.Context) {
		if len(creds) == 0 {
			c.Next()
			return
		}
		user, pass, ok := c.Request.BasicAuth()
		if !ok || creds[user] != pass {
			c.SetHeader("WWW-Authenticate", `Basic realm="davcore"`)
			c.AbortWithStatus(401)
			return
		}
		ctx := dav.WithPrincipal(c.Request.Context(), user)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// uploadCapMiddleware bounds PUT/LOCK/PROPPATCH request bodies the way
// the teacher's own MaxBytesReader (maxreader.go) bounds any handler's
// body, applied in front of dav.Handler since AdapterStdHandle hands the
// raw *http.Request straight through rather than via
// Context.GetReqBody's lazy wrapping.
func uploadCapMiddleware(max int64) touka.HandlerFunc {
	return func(c *touka.Context) {
		if max > 0 && c.Request.Body != nil {
			c.Request.Body = touka.NewMaxBytesReader(c.Request.Body, max)
		}
		c.Next()
	}
}

// webdavMethods is every verb dav.Handler's ServeHTTP dispatches on, per
// spec.md §7, mounted at "/webdav/*path" the same way
// _examples/infinite-iroha-touka/examples/webdav/main.go mounts its own
// handler — except this list also includes TRACE, which the teacher's
// own method list omits.
var webdavMethods = []string{
	"OPTIONS", "GET", "HEAD", "PUT", "DELETE", "MKCOL",
	"COPY", "MOVE", "PROPFIND", "PROPPATCH", "LOCK", "UNLOCK", "TRACE",
}

func main() {
	configPath := flag.String("config", "davserver.json", "path to a JSON configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		panic("davserver: loading config: " + err.Error())
	}

	logger, err := reco.New(reco.Config{
		Level:      recoLevel(cfg.LogLevel),
		Mode:       recoMode(cfg.LogMode),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Async:      true,
	})
	if err != nil {
		panic("davserver: initializing logger: " + err.Error())
	}

	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		logger.Fatalf("davserver: creating root dir %q: %v", cfg.RootDir, err)
	}
	backend, err := osfs.New(cfg.RootDir)
	if err != nil {
		logger.Fatalf("davserver: opening osfs backend at %q: %v", cfg.RootDir, err)
	}
	lockManager := locks.NewManager()
	backend.SetLocks(lockManager)

	handler := &dav.Handler{
		Backend:            backend,
		Locks:              lockManager,
		Props:              backend,
		Authz:              credentialAuthorizer{requireAuth: len(cfg.Credentials) > 0},
		DefaultLockTimeout: time.Duration(cfg.DefaultLockTimeoutSecs) * time.Second,
		MaxLockTimeout:     time.Duration(cfg.MaxLockTimeoutSecs) * time.Second,
	}

	r := touka.Default()
	r.SetLogger(logger)
	r.SetGlobalMaxRequestBodySize(cfg.MaxUploadBytes)
	r.Use(touka.Gzip(gzip.DefaultCompression))

	davChain := []touka.HandlerFunc{
		basicAuthMiddleware(cfg.Credentials),
		uploadCapMiddleware(cfg.MaxUploadBytes),
		touka.AdapterStdHandle(handler),
	}
	for _, method := range webdavMethods {
		r.Handle(method, "/webdav/*path", davChain...)
	}

	r.GET("/healthz", func(c *touka.Context) {
		c.JSON(200, touka.H{"status": "ok", "root": cfg.RootDir})
	})

	logger.Infof("davserver: serving %q on %s", cfg.RootDir, cfg.ListenAddr)
	shutdownTimeout := time.Duration(cfg.ShutdownTimeoutSecs) * time.Second
	if err := r.RunShutdown(cfg.ListenAddr, shutdownTimeout); err != nil {
		logger.Fatalf("davserver: server exited: %v", err)
	}
}
