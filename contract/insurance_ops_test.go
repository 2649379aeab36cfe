package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInsurancePolicySetsInsurerAndOwner(t *testing.T) {
	env := newRegistryTestEnv()
	alice := env.registerAliceWithVehicle(t)
	acme := acmeIdentity()
	env.mustRegisterUser(t, acme, "Acme Insurance", "INSURANCE_COMPANY", "did:acme:e", "did:acme:w")

	require.NoError(t, env.createInsurancePolicy(acme, "VIN001", 100, 200))

	ctx := env.ctxAs(alice)
	policy, err := env.contract.GetInsurancePolicy(ctx, "VIN001")
	require.NoError(t, err)
	assert.Equal(t, "VIN001", policy.VIN)
	assert.Equal(t, acme.id, policy.Insurer)
	assert.Equal(t, alice.id, policy.VehicleOwner)
	assert.Equal(t, int64(100), policy.StartDate)
	assert.Equal(t, int64(200), policy.EndDate)
	assert.True(t, policy.Active)

	vehicle, err := env.contract.GetVehicle(ctx, "VIN001")
	require.NoError(t, err)
	assert.Equal(t, acme.id, vehicle.CurrentInsurer)

	name, payload := env.lastEvent(t)
	assert.Equal(t, "InsurancePolicyCreated", name)
	assert.Equal(t, "VIN001", payload["vin"])
	assert.Equal(t, acme.id, payload["insurer"])
	assert.Equal(t, alice.id, payload["vehicleOwner"])
	assert.EqualValues(t, 100, payload["startDate"])
	assert.EqualValues(t, 200, payload["endDate"])
}

func TestCreateInsurancePolicyRequiresInsurerRole(t *testing.T) {
	env := newRegistryTestEnv()
	env.registerAliceWithVehicle(t)
	carol := carolIdentity()
	env.mustRegisterUser(t, carol, "Carol", "INDIVIDUAL", "did:carol:e", "did:carol:w")

	err := env.createInsurancePolicy(carol, "VIN001", 100, 200)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	requireReason(t, err, ReasonNotInsuranceCompany)

	// An unregistered caller fails the same check.
	err = env.createInsurancePolicy(daveIdentity(), "VIN001", 100, 200)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	requireReason(t, err, ReasonNotInsuranceCompany)
}

func TestCreateInsurancePolicyValidatesDates(t *testing.T) {
	env := newRegistryTestEnv()
	env.registerAliceWithVehicle(t)
	acme := acmeIdentity()
	env.mustRegisterUser(t, acme, "Acme Insurance", "INSURANCE_COMPANY", "did:acme:e", "did:acme:w")

	cases := []struct {
		testName  string
		startDate int64
		endDate   int64
	}{
		{"end equals start", 100, 100},
		{"end before start", 200, 100},
		{"negative start", -5, 100},
	}
	for _, tc := range cases {
		t.Run(tc.testName, func(t *testing.T) {
			err := env.createInsurancePolicy(acme, "VIN001", tc.startDate, tc.endDate)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			requireReason(t, err, ReasonInvalidDateRange)
		})
	}
}

func TestCreateInsurancePolicyUnknownVehicle(t *testing.T) {
	env := newRegistryTestEnv()
	acme := acmeIdentity()
	env.mustRegisterUser(t, acme, "Acme Insurance", "INSURANCE_COMPANY", "did:acme:e", "did:acme:w")

	err := env.createInsurancePolicy(acme, "VIN404", 100, 200)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	requireReason(t, err, ReasonVehicleNotFound)
}

func TestNewPolicySupersedesOld(t *testing.T) {
	env := newRegistryTestEnv()
	alice := env.registerAliceWithVehicle(t)
	acme := acmeIdentity()
	env.mustRegisterUser(t, acme, "Acme Insurance", "INSURANCE_COMPANY", "did:acme:e", "did:acme:w")
	zeta := daveIdentity()
	env.mustRegisterUser(t, zeta, "Zeta Insurance", "INSURANCE_COMPANY", "did:zeta:e", "did:zeta:w")

	require.NoError(t, env.createInsurancePolicy(acme, "VIN001", 100, 200))
	require.NoError(t, env.createInsurancePolicy(zeta, "VIN001", 300, 400))

	ctx := env.ctxAs(alice)
	policy, err := env.contract.GetInsurancePolicy(ctx, "VIN001")
	require.NoError(t, err)
	assert.Equal(t, zeta.id, policy.Insurer)
	assert.Equal(t, int64(300), policy.StartDate)
	assert.True(t, policy.Active)

	vehicle, err := env.contract.GetVehicle(ctx, "VIN001")
	require.NoError(t, err)
	assert.Equal(t, zeta.id, vehicle.CurrentInsurer)
}

func TestTransferOwnershipDeactivatesPolicy(t *testing.T) {
	env := newRegistryTestEnv()
	alice := env.registerAliceWithVehicle(t)
	acme := acmeIdentity()
	env.mustRegisterUser(t, acme, "Acme Insurance", "INSURANCE_COMPANY", "did:acme:e", "did:acme:w")
	carol := carolIdentity()
	env.mustRegisterUser(t, carol, "Carol", "INDIVIDUAL", "did:carol:e", "did:carol:w")

	require.NoError(t, env.createInsurancePolicy(acme, "VIN001", 100, 200))
	require.NoError(t, env.transferOwnership(alice, "VIN001", "did:carol:e"))

	ctx := env.ctxAs(alice)
	policy, err := env.contract.GetInsurancePolicy(ctx, "VIN001")
	require.NoError(t, err)
	assert.False(t, policy.Active)
	// The superseded record keeps its original insurer for audit.
	assert.Equal(t, acme.id, policy.Insurer)

	vehicle, err := env.contract.GetVehicle(ctx, "VIN001")
	require.NoError(t, err)
	assert.Empty(t, vehicle.CurrentInsurer)

	name, payload := env.lastEvent(t)
	assert.Equal(t, "OwnershipTransferred", name)
	assert.Equal(t, true, payload["policyDeactivated"])
}

func TestGetInsurancePolicyNotFound(t *testing.T) {
	env := newRegistryTestEnv()
	env.registerAliceWithVehicle(t)

	_, err := env.contract.GetInsurancePolicy(env.ctxAs(aliceIdentity()), "VIN001")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	requireReason(t, err, ReasonPolicyNotFound)
}
