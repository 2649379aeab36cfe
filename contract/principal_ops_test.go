package contract

import (
	"testing"

	"vehicledid/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterUserStoresPrincipalAndBindsDIDs(t *testing.T) {
	env := newRegistryTestEnv()
	alice := aliceIdentity()

	require.NoError(t, env.registerUser(alice, "Alice", "INDIVIDUAL", "did:alice:e", "did:alice:w"))

	ctx := env.ctxAs(alice)
	principal, err := env.contract.GetUser(ctx, alice.id)
	require.NoError(t, err)
	assert.Equal(t, alice.id, principal.Address)
	assert.Equal(t, "Alice", principal.Name)
	assert.Equal(t, model.RoleIndividual, principal.Role)
	assert.Equal(t, "did:alice:e", principal.EntityDID)
	assert.Equal(t, "did:alice:w", principal.WalletDID)
	assert.True(t, principal.Registered)
	assert.True(t, principal.RegisteredAt.Equal(env.stub.now))

	for _, did := range []string{"did:alice:e", "did:alice:w"} {
		registered, errReg := env.contract.IsDIDRegistered(ctx, did)
		require.NoError(t, errReg)
		assert.True(t, registered, "DID %s should be registered", did)

		address, errResolve := env.contract.ResolveDIDAddress(ctx, did)
		require.NoError(t, errResolve)
		assert.Equal(t, alice.id, address, "DID %s should resolve to Alice's address", did)
	}

	name, payload := env.lastEvent(t)
	assert.Equal(t, "UserRegistered", name)
	assert.Equal(t, alice.id, payload["actorAddress"])
	assert.Equal(t, "Alice", payload["name"])
	assert.Equal(t, "INDIVIDUAL", payload["role"])
	assert.Equal(t, "did:alice:e", payload["entityDid"])
	assert.Equal(t, "did:alice:w", payload["walletDid"])
	assert.NotEmpty(t, payload["txId"])
}

func TestRegisterUserRejectsDuplicateAddress(t *testing.T) {
	env := newRegistryTestEnv()
	alice := env.registerAlice(t)

	err := env.registerUser(alice, "Alice Again", "MECHANIC", "did:alice2:e", "did:alice2:w")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	requireReason(t, err, ReasonAddressRegistered)

	// The one-actor-per-address rule spans the roadside unit namespace too.
	unit := unitIdentity()
	require.NoError(t, env.registerRoadsideUnit(unit, "RSU 42", "Highway 7 km 12", "did:rsu42:e", "did:rsu42:w"))
	err = env.registerUser(unit, "Unit As User", "INDIVIDUAL", "did:rsu42:u:e", "did:rsu42:u:w")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	requireReason(t, err, ReasonAddressRegistered)
}

func TestRegisterUserRejectsAlreadyBoundDID(t *testing.T) {
	env := newRegistryTestEnv()
	env.registerAlice(t)
	bob := bobIdentity()

	err := env.registerUser(bob, "Bob", "MECHANIC", "did:alice:e", "did:bob:w")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	requireReason(t, err, ReasonDIDAlreadyBound)

	// The failed registration left nothing behind.
	_, err = env.contract.GetUser(env.ctxAs(bob), bob.id)
	assert.ErrorIs(t, err, ErrNotFound)
	bound, err := env.contract.IsDIDRegistered(env.ctxAs(bob), "did:bob:w")
	require.NoError(t, err)
	assert.False(t, bound)
}

func TestRegisterUserValidatesInput(t *testing.T) {
	env := newRegistryTestEnv()
	alice := aliceIdentity()

	cases := []struct {
		testName  string
		name      string
		role      string
		entityDID string
		walletDID string
		reason    string
	}{
		{"empty name", "", "INDIVIDUAL", "did:a:e", "did:a:w", ReasonEmptyField},
		{"unknown role", "Alice", "PIRATE", "did:a:e", "did:a:w", ReasonInvalidRole},
		{"entity DID without prefix", "Alice", "INDIVIDUAL", "alice-entity", "did:a:w", ReasonInvalidDID},
		{"empty wallet DID", "Alice", "INDIVIDUAL", "did:a:e", "", ReasonEmptyField},
	}
	for _, tc := range cases {
		t.Run(tc.testName, func(t *testing.T) {
			err := env.registerUser(alice, tc.name, tc.role, tc.entityDID, tc.walletDID)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			requireReason(t, err, tc.reason)
		})
	}
}

func TestRoadsideUnitLifecycle(t *testing.T) {
	env := newRegistryTestEnv()
	unit := unitIdentity()

	require.NoError(t, env.registerRoadsideUnit(unit, "RSU 42", "Highway 7 km 12", "did:rsu42:e", "did:rsu42:w"))

	ctx := env.ctxAs(unit)
	stored, err := env.contract.GetRoadsideUnit(ctx, unit.id)
	require.NoError(t, err)
	assert.Equal(t, "RSU 42", stored.Name)
	assert.Equal(t, "Highway 7 km 12", stored.Location)
	assert.True(t, stored.Active)

	address, err := env.contract.ResolveDIDAddress(ctx, "did:rsu42:e")
	require.NoError(t, err)
	assert.Equal(t, unit.id, address)

	units, err := env.contract.GetAllRoadsideUnits(ctx)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "RSU 42", units[0].Name)

	require.NoError(t, env.deactivateRoadsideUnit(unit))
	stored, err = env.contract.GetRoadsideUnit(ctx, unit.id)
	require.NoError(t, err)
	assert.False(t, stored.Active)

	name, payload := env.lastEvent(t)
	assert.Equal(t, "RoadsideUnitDeactivated", name)
	assert.Equal(t, unit.id, payload["actorAddress"])
	assert.Equal(t, "RSU 42", payload["name"])

	// Deactivation is idempotent.
	require.NoError(t, env.deactivateRoadsideUnit(unit))
}

func TestDeactivateRoadsideUnitRequiresUnitCaller(t *testing.T) {
	env := newRegistryTestEnv()
	alice := env.registerAlice(t)

	err := env.deactivateRoadsideUnit(alice)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthorization)
	requireReason(t, err, ReasonNotRoadsideUnit)

	err = env.deactivateRoadsideUnit(daveIdentity())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthorization)
}

func TestGetUsersByRole(t *testing.T) {
	env := newRegistryTestEnv()
	env.registerAlice(t)
	env.mustRegisterUser(t, carolIdentity(), "Carol", "INDIVIDUAL", "did:carol:e", "did:carol:w")
	env.mustRegisterUser(t, bobIdentity(), "Bob", "MECHANIC", "did:bob:e", "did:bob:w")

	ctx := env.ctxAs(aliceIdentity())

	individuals, err := env.contract.GetUsersByRole(ctx, "INDIVIDUAL")
	require.NoError(t, err)
	require.Len(t, individuals, 2)
	names := []string{individuals[0].Name, individuals[1].Name}
	assert.ElementsMatch(t, []string{"Alice", "Carol"}, names)

	mechanics, err := env.contract.GetUsersByRole(ctx, "MECHANIC")
	require.NoError(t, err)
	require.Len(t, mechanics, 1)
	assert.Equal(t, "Bob", mechanics[0].Name)

	manufacturers, err := env.contract.GetUsersByRole(ctx, "VEHICLE_MANUFACTURER")
	require.NoError(t, err)
	assert.NotNil(t, manufacturers)
	assert.Empty(t, manufacturers)

	_, err = env.contract.GetUsersByRole(ctx, "PIRATE")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	requireReason(t, err, ReasonInvalidRole)
}

func TestGetRegisteredAddresses(t *testing.T) {
	env := newRegistryTestEnv()
	alice := env.registerAlice(t)
	bob := bobIdentity()
	env.mustRegisterUser(t, bob, "Bob", "MECHANIC", "did:bob:e", "did:bob:w")
	unit := unitIdentity()
	require.NoError(t, env.registerRoadsideUnit(unit, "RSU 42", "Highway 7 km 12", "did:rsu42:e", "did:rsu42:w"))

	addresses, err := env.contract.GetRegisteredAddresses(env.ctxAs(alice))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{alice.id, bob.id, unit.id}, addresses)
}

func TestGetUserByDID(t *testing.T) {
	env := newRegistryTestEnv()
	env.registerAlice(t)
	ctx := env.ctxAs(aliceIdentity())

	principal, err := env.contract.GetUserByDID(ctx, "did:alice:w")
	require.NoError(t, err)
	assert.Equal(t, "Alice", principal.Name)

	_, err = env.contract.GetUserByDID(ctx, "did:nobody:e")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	requireReason(t, err, ReasonDIDNotBound)
}

func TestGetUserNotFound(t *testing.T) {
	env := newRegistryTestEnv()
	_, err := env.contract.GetUser(env.ctxAs(aliceIdentity()), "x509::CN=Nobody::CN=ca.org1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	requireReason(t, err, ReasonPrincipalNotFound)
}
