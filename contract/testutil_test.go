package contract

import (
	"crypto/x509"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/shimtest"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// registryMockStub wraps shimtest.MockStub with a controllable transaction
// timestamp, since contract code reads all time from the stub.
type registryMockStub struct {
	*shimtest.MockStub
	now time.Time
}

func (s *registryMockStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(s.now), nil
}

// testIdentity is a minimal cid.ClientIdentity for driving contract calls as
// different callers.
type testIdentity struct {
	id    string
	mspID string
}

func newTestIdentity(id string) *testIdentity {
	return &testIdentity{id: id, mspID: "Org1MSP"}
}

func (t *testIdentity) GetID() (string, error)    { return t.id, nil }
func (t *testIdentity) GetMSPID() (string, error) { return t.mspID, nil }
func (t *testIdentity) GetAttributeValue(attrName string) (string, bool, error) {
	return "", false, nil
}
func (t *testIdentity) AssertAttributeValue(attrName, attrValue string) error { return nil }
func (t *testIdentity) GetX509Certificate() (*x509.Certificate, error)        { return nil, nil }

// registryTestEnv drives a VehicleDIDSmartContract against one mock ledger.
type registryTestEnv struct {
	contract *VehicleDIDSmartContract
	stub     *registryMockStub
	txCount  int
}

func newRegistryTestEnv() *registryTestEnv {
	return &registryTestEnv{
		contract: &VehicleDIDSmartContract{},
		stub: &registryMockStub{
			MockStub: shimtest.NewMockStub("vehicledid", nil),
			now:      time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC),
		},
	}
}

// ctxAs builds a transaction context acting as the given identity.
func (env *registryTestEnv) ctxAs(identity *testIdentity) *contractapi.TransactionContext {
	ctx := &contractapi.TransactionContext{}
	ctx.SetStub(env.stub)
	ctx.SetClientIdentity(identity)
	return ctx
}

// inTx runs fn inside a mock transaction so state writes are permitted.
func (env *registryTestEnv) inTx(fn func() error) error {
	env.txCount++
	txID := fmt.Sprintf("tx%04d", env.txCount)
	env.stub.MockTransactionStart(txID)
	defer env.stub.MockTransactionEnd(txID)
	return fn()
}

// lastEvent drains the stub's event channel and decodes the most recent
// chaincode event.
func (env *registryTestEnv) lastEvent(t *testing.T) (string, map[string]interface{}) {
	t.Helper()
	var name string
	var payload []byte
	for {
		select {
		case ev := <-env.stub.ChaincodeEventsChannel:
			name = ev.EventName
			payload = ev.Payload
		default:
			require.NotEmpty(t, name, "expected a chaincode event")
			decoded := map[string]interface{}{}
			require.NoError(t, json.Unmarshal(payload, &decoded))
			return name, decoded
		}
	}
}

// drainEvents discards any buffered events, for tests that only care about
// the next one.
func (env *registryTestEnv) drainEvents() {
	for {
		select {
		case <-env.stub.ChaincodeEventsChannel:
		default:
			return
		}
	}
}

// requireReason asserts that err carries a RegistryError with the given
// stable reason code, however deeply wrapped.
func requireReason(t *testing.T, err error, reason string) {
	t.Helper()
	var regErr *RegistryError
	require.ErrorAs(t, err, &regErr)
	require.Equal(t, reason, regErr.Reason)
}

// --- Operation Wrappers ---

func (env *registryTestEnv) registerUser(identity *testIdentity, name, role, entityDID, walletDID string) error {
	return env.inTx(func() error {
		return env.contract.RegisterUser(env.ctxAs(identity), name, role, entityDID, walletDID)
	})
}

func (env *registryTestEnv) registerRoadsideUnit(identity *testIdentity, name, location, entityDID, walletDID string) error {
	return env.inTx(func() error {
		return env.contract.RegisterRoadsideUnit(env.ctxAs(identity), name, location, entityDID, walletDID)
	})
}

func (env *registryTestEnv) deactivateRoadsideUnit(identity *testIdentity) error {
	return env.inTx(func() error {
		return env.contract.DeactivateRoadsideUnit(env.ctxAs(identity))
	})
}

func (env *registryTestEnv) registerVehicle(identity *testIdentity, vin, ownerDID, entityDID string, year int, vehicleMake, vehicleModel, walletDID, credentialDID string) error {
	return env.inTx(func() error {
		return env.contract.RegisterVehicle(env.ctxAs(identity), vin, ownerDID, entityDID, year, vehicleMake, vehicleModel, walletDID, credentialDID)
	})
}

func (env *registryTestEnv) transferOwnership(identity *testIdentity, vin, newOwner string) error {
	return env.inTx(func() error {
		return env.contract.TransferOwnership(env.ctxAs(identity), vin, newOwner)
	})
}

func (env *registryTestEnv) updateVehicleConfiguration(identity *testIdentity, vehicleDID, configuration string) error {
	return env.inTx(func() error {
		return env.contract.UpdateVehicleConfiguration(env.ctxAs(identity), vehicleDID, configuration)
	})
}

func (env *registryTestEnv) authorizeMechanic(identity *testIdentity, vin, mechanic string) error {
	return env.inTx(func() error {
		return env.contract.AuthorizeMechanic(env.ctxAs(identity), vin, mechanic)
	})
}

func (env *registryTestEnv) addMaintenanceRecord(identity *testIdentity, vin, description string, critical bool) error {
	return env.inTx(func() error {
		return env.contract.AddMaintenanceRecord(env.ctxAs(identity), vin, description, critical)
	})
}

func (env *registryTestEnv) createInsurancePolicy(identity *testIdentity, vin string, startDate, endDate int64) error {
	return env.inTx(func() error {
		return env.contract.CreateInsurancePolicy(env.ctxAs(identity), vin, startDate, endDate)
	})
}

func (env *registryTestEnv) storeDIDDocument(identity *testIdentity, did, document string) error {
	return env.inTx(func() error {
		return env.contract.StoreDIDDocument(env.ctxAs(identity), did, document)
	})
}

func (env *registryTestEnv) revokeDIDDocument(identity *testIdentity, did string) error {
	return env.inTx(func() error {
		return env.contract.RevokeDIDDocument(env.ctxAs(identity), did)
	})
}

func (env *registryTestEnv) storeCredential(identity *testIdentity, credentialID, issuerDID, subjectDID, data string) error {
	return env.inTx(func() error {
		return env.contract.StoreCredential(env.ctxAs(identity), credentialID, issuerDID, subjectDID, data)
	})
}

func (env *registryTestEnv) recordInteraction(identity *testIdentity, source, destination, sourceID, destinationID, interactionType, payload string) error {
	return env.inTx(func() error {
		return env.contract.RecordInteraction(env.ctxAs(identity), source, destination, sourceID, destinationID, interactionType, payload)
	})
}

// --- Common Fixtures ---

// Identities reused across tests. Addresses mimic the opaque client IDs the
// identity service hands back.
var (
	aliceIdentity = func() *testIdentity { return newTestIdentity("x509::CN=Alice::CN=ca.org1") }
	bobIdentity   = func() *testIdentity { return newTestIdentity("x509::CN=Bob::CN=ca.org1") }
	acmeIdentity  = func() *testIdentity { return newTestIdentity("x509::CN=Acme::CN=ca.org2") }
	carolIdentity = func() *testIdentity { return newTestIdentity("x509::CN=Carol::CN=ca.org1") }
	daveIdentity  = func() *testIdentity { return newTestIdentity("x509::CN=Dave::CN=ca.org1") }
	unitIdentity  = func() *testIdentity { return newTestIdentity("x509::CN=RSU42::CN=ca.org3") }
)

func (env *registryTestEnv) mustRegisterUser(t *testing.T, identity *testIdentity, name, role, entityDID, walletDID string) {
	t.Helper()
	require.NoError(t, env.registerUser(identity, name, role, entityDID, walletDID))
}

// registerAlice sets up the standard individual used by most vehicle tests.
func (env *registryTestEnv) registerAlice(t *testing.T) *testIdentity {
	t.Helper()
	alice := aliceIdentity()
	env.mustRegisterUser(t, alice, "Alice", "INDIVIDUAL", "did:alice:e", "did:alice:w")
	return alice
}

// registerAliceWithVehicle also registers VIN001 owned by Alice.
func (env *registryTestEnv) registerAliceWithVehicle(t *testing.T) *testIdentity {
	t.Helper()
	alice := env.registerAlice(t)
	require.NoError(t, env.registerVehicle(alice, "VIN001", "did:alice:e", "did:car1:e", 2021, "Tesla", "Model 3", "did:car1:w", "did:car1:cred"))
	return alice
}
