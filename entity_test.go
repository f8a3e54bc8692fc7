package mutation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAuditStamps(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)

	var a Audit
	a.StampCreated(created, "ada")
	assert.Equal(t, created, a.CreatedAt)
	assert.Equal(t, "ada", a.CreatedBy)
	assert.Equal(t, created, *a.UpdatedAt)

	a.StampUpdated(updated, "bob")
	assert.Equal(t, "ada", a.CreatedBy)
	assert.Equal(t, updated, *a.UpdatedAt)
	assert.Equal(t, "bob", a.UpdatedBy)

	a.MarkDeleted(updated, "bob")
	a.MarkArchived(updated, "bob")
	assert.True(t, a.IsDeleted())
	assert.True(t, a.IsArchived())

	a.Restore()
	assert.False(t, a.IsDeleted())
	assert.False(t, a.IsArchived())
}

func TestPrincipalDisplayName(t *testing.T) {
	assert.Equal(t, "ada", Principal{Name: "ada", Authenticated: true}.DisplayName("guest"))
	assert.Equal(t, "guest", Principal{Name: "ada"}.DisplayName("guest"))
	assert.Equal(t, AnonymousName, Principal{Authenticated: true}.DisplayName(""))
}

func TestContextPrincipalProvider(t *testing.T) {
	_, ok := ContextPrincipalProvider{}.Principal(context.Background())
	assert.False(t, ok)

	ctx := ContextWithPrincipal(context.Background(), Principal{Name: "ada", Authenticated: true})
	p, ok := ContextPrincipalProvider{}.Principal(ctx)
	assert.True(t, ok)
	assert.Equal(t, "ada", p.Name)

	fixed := PrincipalProviderFunc(func(context.Context) (Principal, bool) {
		return Principal{Name: "system", Authenticated: true}, true
	})
	p, _ = fixed.Principal(context.Background())
	assert.Equal(t, "system", p.Name)
}
