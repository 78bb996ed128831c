package printer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"resume-printer/internal/config"
)

func rewriteCfg() config.RewriteConfig {
	return config.RewriteConfig{
		AppAlias:      "host.docker.internal",
		StorageAlias:  "minio",
		FallbackAlias: "host.docker.internal",
	}
}

func TestRewriteTable_NoLoopbackIsInactive(t *testing.T) {
	table := NewRewriteTable("https://resume.example.com/", "https://s3.example.com", rewriteCfg())

	assert.False(t, table.Active())
	assert.Equal(t, "https://resume.example.com", table.NavigationURL())

	got, changed := table.Rewrite("https://s3.example.com/bucket/avatar.png")
	assert.False(t, changed)
	assert.Equal(t, "https://s3.example.com/bucket/avatar.png", got)
}

func TestRewriteTable_LoopbackAppAndStorage(t *testing.T) {
	table := NewRewriteTable("http://localhost:3000", "http://localhost:9000", rewriteCfg())

	assert.True(t, table.Active())
	assert.Equal(t, "http://host.docker.internal:3000", table.NavigationURL())

	tests := []struct {
		in      string
		want    string
		changed bool
	}{
		{"http://localhost:9000/default/user-1/pictures/a.jpg?v=2", "http://minio:9000/default/user-1/pictures/a.jpg?v=2", true},
		{"http://localhost:3000/assets/index.js", "http://host.docker.internal:3000/assets/index.js", true},
		{"http://LOCALHOST:3000/favicon.ico", "http://host.docker.internal:3000/favicon.ico", true},
		{"http://localhost:5173/@vite/client", "http://host.docker.internal:5173/@vite/client", true},
		{"http://127.0.0.1:9000/not-configured.png", "http://127.0.0.1:9000/not-configured.png", false},
		{"https://fonts.googleapis.com/css2?family=IBM+Plex+Sans", "https://fonts.googleapis.com/css2?family=IBM+Plex+Sans", false},
		{"::not a url", "::not a url", false},
	}
	for _, tc := range tests {
		got, changed := table.Rewrite(tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.changed, changed, tc.in)
	}
}

func TestRewriteTable_OnlyStorageIsLoopback(t *testing.T) {
	table := NewRewriteTable("https://resume.example.com", "http://127.0.0.1:9000", rewriteCfg())

	assert.True(t, table.Active())
	assert.Equal(t, "https://resume.example.com", table.NavigationURL())

	got, changed := table.Rewrite("http://127.0.0.1:9000/default/x.png")
	assert.True(t, changed)
	assert.Equal(t, "http://minio:9000/default/x.png", got)
}

func TestRewriteTable_DistinctHostsSharingPort(t *testing.T) {
	table := NewRewriteTable("http://app.localhost:8080", "http://s3.localhost:8080", rewriteCfg())

	assert.Equal(t, "http://host.docker.internal:8080", table.NavigationURL())

	got, changed := table.Rewrite("http://s3.localhost:8080/default/avatar.png")
	assert.True(t, changed)
	assert.Equal(t, "http://minio:8080/default/avatar.png", got)

	got, changed = table.Rewrite("http://app.localhost:8080/assets/app.css")
	assert.True(t, changed)
	assert.Equal(t, "http://host.docker.internal:8080/assets/app.css", got)

	table = NewRewriteTable("http://localhost:8080", "http://127.0.0.1:8080", rewriteCfg())
	got, _ = table.Rewrite("http://127.0.0.1:8080/default/a.jpg")
	assert.Equal(t, "http://minio:8080/default/a.jpg", got)
	got, _ = table.Rewrite("http://localhost:8080/index.html")
	assert.Equal(t, "http://host.docker.internal:8080/index.html", got)
}

func TestRewriteTable_IdenticalHostUsesAppAlias(t *testing.T) {
	table := NewRewriteTable("http://localhost", "http://localhost:80", rewriteCfg())

	assert.Equal(t, "http://host.docker.internal", table.NavigationURL())
	got, changed := table.Rewrite("http://localhost/default/a.png")
	assert.True(t, changed)
	assert.Equal(t, "http://host.docker.internal/default/a.png", got)
}

func TestRewriteTable_PortsAndFallback(t *testing.T) {
	cfg := rewriteCfg()
	cfg.FallbackAlias = "gateway"
	cfg.Ports = map[string]string{"4000": "api", "9000": "ignored"}
	table := NewRewriteTable("http://localhost:3000", "http://localhost:9000", cfg)

	tests := []struct {
		in   string
		want string
	}{
		// Exact host entries win over the port map.
		{"http://localhost:9000/default/a.png", "http://minio:9000/default/a.png"},
		{"http://localhost:4000/graphql", "http://api:4000/graphql"},
		{"http://localhost:5173/src/main.ts", "http://gateway:5173/src/main.ts"},
		{"http://localhost/", "http://gateway/"},
	}
	for _, tc := range tests {
		got, changed := table.Rewrite(tc.in)
		assert.True(t, changed, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestRewriteTable_FallbackDefaultsToAppAlias(t *testing.T) {
	cfg := rewriteCfg()
	cfg.FallbackAlias = ""
	table := NewRewriteTable("https://resume.example.com", "http://localhost:9000", cfg)

	got, changed := table.Rewrite("http://localhost:4000/api")
	assert.True(t, changed)
	assert.Equal(t, "http://host.docker.internal:4000/api", got)
}

func TestRewriteTable_AliasEqualToHostnameIsUnchanged(t *testing.T) {
	cfg := rewriteCfg()
	cfg.StorageAlias = "localhost"
	table := NewRewriteTable("https://resume.example.com", "http://localhost:9000", cfg)

	got, changed := table.Rewrite("http://localhost:9000/default/a.png")
	assert.False(t, changed)
	assert.Equal(t, "http://localhost:9000/default/a.png", got)
}

func TestIsLoopback(t *testing.T) {
	for _, h := range []string{"localhost", "LOCALHOST", "app.localhost", "127.0.0.1", "127.1.2.3", "::1"} {
		assert.True(t, isLoopback(h), h)
	}
	for _, h := range []string{"", "example.com", "10.0.0.1", "localhost.example.com", "minio"} {
		assert.False(t, isLoopback(h), h)
	}
}
