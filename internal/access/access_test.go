package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompile_AdminGetsUnrestrictedFilter(t *testing.T) {
	f := Compile(Principal{UserID: "u1", IsAdmin: true})
	assert.True(t, f.All)
}

func TestCompile_DedupesGroups(t *testing.T) {
	f := Compile(Principal{UserID: "u1", Groups: []string{"eng", "eng", "", "ops"}})
	assert.Equal(t, []string{"eng", "ops"}, f.Groups)
}

func TestFilter_Matches(t *testing.T) {
	private := DocumentACL{OwnerID: "owner-1", OwnerEmail: "owner@example.com"}
	public := DocumentACL{OwnerID: "owner-1", IsPublic: true}
	shared := DocumentACL{OwnerID: "owner-1", SharedWith: []string{"friend-1", "friend-2"}}
	grouped := DocumentACL{OwnerID: "owner-1", GroupIDs: []string{"eng", "research"}}

	cases := []struct {
		name      string
		principal Principal
		doc       DocumentACL
		want      bool
	}{
		{"admin sees everything", Principal{IsAdmin: true}, private, true},
		{"owner by user id", Principal{UserID: "owner-1"}, private, true},
		{"owner by email", Principal{Email: "owner@example.com"}, private, true},
		{"wrong email denied", Principal{Email: "other@example.com"}, private, false},
		{"stranger denied", Principal{UserID: "stranger"}, private, false},
		{"anyone sees public", Principal{UserID: "stranger"}, public, true},
		{"anonymous sees public", Principal{}, public, true},
		{"anonymous denied private", Principal{}, private, false},
		{"anonymous denied shared", Principal{}, shared, false},
		{"shared user allowed", Principal{UserID: "friend-2"}, shared, true},
		{"unshared user denied", Principal{UserID: "friend-3"}, shared, false},
		{"group overlap allowed", Principal{UserID: "u9", Groups: []string{"research"}}, grouped, true},
		{"disjoint groups denied", Principal{UserID: "u9", Groups: []string{"sales"}}, grouped, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := Compile(tc.principal)
			assert.Equal(t, tc.want, f.Matches(tc.doc))
		})
	}
}

func TestFilter_EmptyUserIDNeverMatchesEmptyOwner(t *testing.T) {
	// A document row with blank owner fields must not leak to an
	// anonymous caller through empty-string equality.
	doc := DocumentACL{OwnerID: "", OwnerEmail: ""}
	f := Compile(Principal{})
	assert.False(t, f.Matches(doc))
}

func TestCanWrite(t *testing.T) {
	doc := DocumentACL{OwnerID: "owner-1", OwnerEmail: "owner@example.com", IsPublic: true}

	assert.True(t, CanWrite(Principal{UserID: "owner-1"}, doc))
	assert.True(t, CanWrite(Principal{IsAdmin: true}, doc))
	assert.False(t, CanWrite(Principal{UserID: "stranger"}, doc), "public grants read, not write")
	assert.False(t, CanWrite(Principal{Email: "owner@example.com"}, doc), "email ownership does not grant write")
	assert.False(t, CanWrite(Principal{}, doc))
}

func TestIsAnonymous(t *testing.T) {
	assert.True(t, Principal{}.IsAnonymous())
	assert.False(t, Principal{UserID: "u1"}.IsAnonymous())
	assert.False(t, Principal{Email: "a@b.c"}.IsAnonymous())
	assert.False(t, Principal{Groups: []string{"g"}}.IsAnonymous())
	assert.False(t, Principal{IsAdmin: true}.IsAnonymous())
}
