package contract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreDIDDocumentSetsControllerAndRegistersDID(t *testing.T) {
	env := newRegistryTestEnv()
	alice := env.registerAlice(t)

	require.NoError(t, env.storeDIDDocument(alice, "did:svc:telemetry", `{"service":"telemetry"}`))

	ctx := env.ctxAs(alice)
	doc, err := env.contract.GetDIDDocument(ctx, "did:svc:telemetry")
	require.NoError(t, err)
	assert.Equal(t, "did:svc:telemetry", doc.DID)
	assert.Equal(t, `{"service":"telemetry"}`, doc.Document)
	assert.Equal(t, alice.id, doc.Controller)
	assert.True(t, doc.Active)
	assert.True(t, doc.Timestamp.Equal(env.stub.now))

	registered, err := env.contract.IsDIDRegistered(ctx, "did:svc:telemetry")
	require.NoError(t, err)
	assert.True(t, registered)

	name, payload := env.lastEvent(t)
	assert.Equal(t, "DIDDocumentStored", name)
	assert.Equal(t, "did:svc:telemetry", payload["did"])
	assert.Equal(t, alice.id, payload["controller"])
	assert.Equal(t, true, payload["didRegistered"])
}

func TestStoreDIDDocumentForAlreadyRegisteredDID(t *testing.T) {
	env := newRegistryTestEnv()
	alice := env.registerAlice(t)

	// did:alice:e was registered when Alice bound it.
	require.NoError(t, env.storeDIDDocument(alice, "did:alice:e", `{"id":"did:alice:e"}`))

	name, payload := env.lastEvent(t)
	assert.Equal(t, "DIDDocumentStored", name)
	assert.Equal(t, false, payload["didRegistered"])
}

func TestStoreDIDDocumentControllerGuard(t *testing.T) {
	env := newRegistryTestEnv()
	alice := env.registerAlice(t)
	carol := carolIdentity()
	env.mustRegisterUser(t, carol, "Carol", "INDIVIDUAL", "did:carol:e", "did:carol:w")

	require.NoError(t, env.storeDIDDocument(alice, "did:svc:telemetry", `{"v":1}`))

	err := env.storeDIDDocument(carol, "did:svc:telemetry", `{"v":2}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthorization)
	requireReason(t, err, ReasonNotController)

	// The controller may update in place.
	env.stub.now = env.stub.now.Add(time.Hour)
	require.NoError(t, env.storeDIDDocument(alice, "did:svc:telemetry", `{"v":2}`))

	doc, err := env.contract.GetDIDDocument(env.ctxAs(alice), "did:svc:telemetry")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, doc.Document)
	assert.Equal(t, alice.id, doc.Controller)
	assert.True(t, doc.Timestamp.Equal(env.stub.now))
}

func TestRevokeDIDDocument(t *testing.T) {
	env := newRegistryTestEnv()
	alice := env.registerAlice(t)
	carol := carolIdentity()
	env.mustRegisterUser(t, carol, "Carol", "INDIVIDUAL", "did:carol:e", "did:carol:w")

	require.NoError(t, env.storeDIDDocument(alice, "did:svc:telemetry", `{"v":1}`))

	err := env.revokeDIDDocument(carol, "did:svc:telemetry")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthorization)
	requireReason(t, err, ReasonNotController)

	env.stub.now = env.stub.now.Add(time.Hour)
	require.NoError(t, env.revokeDIDDocument(alice, "did:svc:telemetry"))

	doc, err := env.contract.GetDIDDocument(env.ctxAs(alice), "did:svc:telemetry")
	require.NoError(t, err)
	assert.False(t, doc.Active)
	// The document body survives revocation.
	assert.Equal(t, `{"v":1}`, doc.Document)
	assert.True(t, doc.Timestamp.Equal(env.stub.now))

	name, payload := env.lastEvent(t)
	assert.Equal(t, "DIDDocumentRevoked", name)
	assert.Equal(t, "did:svc:telemetry", payload["did"])
	assert.Equal(t, alice.id, payload["controller"])
}

func TestRevokeDIDDocumentNotFound(t *testing.T) {
	env := newRegistryTestEnv()
	alice := env.registerAlice(t)

	err := env.revokeDIDDocument(alice, "did:svc:missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	requireReason(t, err, ReasonDocumentNotFound)
}

func TestStoreDIDDocumentValidatesInput(t *testing.T) {
	env := newRegistryTestEnv()
	alice := env.registerAlice(t)

	err := env.storeDIDDocument(alice, "not-a-did", `{}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	requireReason(t, err, ReasonInvalidDID)

	err = env.storeDIDDocument(alice, "did:svc:telemetry", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	requireReason(t, err, ReasonEmptyField)
}

func TestGetDIDDocumentNotFound(t *testing.T) {
	env := newRegistryTestEnv()
	_, err := env.contract.GetDIDDocument(env.ctxAs(aliceIdentity()), "did:svc:missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	requireReason(t, err, ReasonDocumentNotFound)
}
