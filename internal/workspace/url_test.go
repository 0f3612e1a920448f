package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInjectToken(t *testing.T) {
	cases := []struct {
		name, url, token, host, want string
	}{
		{"github https", "https://github.com/acme/app", "tok", "", "https://tok@github.com/acme/app"},
		{"host case-insensitive", "https://GitHub.com/acme/app.git", "tok", "github.com", "https://tok@GitHub.com/acme/app.git"},
		{"other host untouched", "https://gitlab.com/acme/app", "tok", "", "https://gitlab.com/acme/app"},
		{"http untouched", "http://github.com/acme/app", "tok", "", "http://github.com/acme/app"},
		{"ssh untouched", "git@github.com:acme/app.git", "tok", "", "git@github.com:acme/app.git"},
		{"no token", "https://github.com/acme/app", "", "", "https://github.com/acme/app"},
		{"custom host", "https://git.corp.local/team/svc", "tok", "git.corp.local", "https://tok@git.corp.local/team/svc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, InjectToken(tc.url, tc.token, tc.host))
		})
	}
}

func TestRepoIdentity(t *testing.T) {
	want := "github.com/acme/app"
	for _, in := range []string{
		"https://github.com/acme/app",
		"https://GitHub.com/acme/app.git",
		"https://github.com/acme/app/",
		"https://tok@github.com/acme/app.git",
		"git@github.com:acme/app.git",
	} {
		got, err := RepoIdentity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := RepoIdentity(" ")
	assert.Error(t, err)
}
