package registry

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/metafi/lending-deploy/framework"
	"github.com/metafi/lending-deploy/internal/testchain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var testAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestService(t *testing.T) *Service {
	store := framework.NewRecordStore(t.TempDir())

	artifact, err := framework.ReadArtifact(testchain.WriteLendingArtifact(t, t.TempDir()))
	require.NoError(t, err)
	record := framework.NewDeploymentRecord("localhost", big.NewInt(31337), artifact, testAddr,
		common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), nil,
		&types.Receipt{TxHash: common.HexToHash("0x02"), BlockNumber: big.NewInt(1)}, time.Now())
	require.NoError(t, store.Save(record))

	return NewService(testLog(), "localhost:0", store)
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestWebserverRoot(t *testing.T) {
	srv := newTestService(t)
	rr := get(t, srv.Router(), "/")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{}`, rr.Body.String())
}

func TestNetworks(t *testing.T) {
	srv := newTestService(t)
	rr := get(t, srv.Router(), "/deployments")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `["localhost"]`, rr.Body.String())
}

func TestNetworkRecords(t *testing.T) {
	srv := newTestService(t)

	rr := get(t, srv.Router(), "/deployments/localhost")
	require.Equal(t, http.StatusOK, rr.Code)
	var records []framework.DeploymentRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	require.Len(t, records, 1)
	require.Equal(t, testAddr, records[0].Address)

	rr = get(t, srv.Router(), "/deployments/unknown")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `[]`, rr.Body.String())
}

func TestDeploymentRecord(t *testing.T) {
	srv := newTestService(t)

	rr := get(t, srv.Router(), "/deployments/localhost/MetaFiLendingPlatform")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var record framework.DeploymentRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &record))
	require.Equal(t, testAddr, record.Address)
	require.Equal(t, "MetaFiLendingPlatform", record.ContractName)
	require.Equal(t, "31337", record.ChainID)
}

func TestDeploymentRecordNotFound(t *testing.T) {
	srv := newTestService(t)

	rr := get(t, srv.Router(), "/deployments/localhost/Missing")
	require.Equal(t, http.StatusNotFound, rr.Code)

	var resp httpErrorResp
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, http.StatusNotFound, resp.Code)
	require.Contains(t, resp.Message, "not found")
}

func TestDeploymentRecordInvalidName(t *testing.T) {
	srv := newTestService(t)

	rr := get(t, srv.Router(), "/deployments/localhost/bad%20name")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestService(t)

	req := httptest.NewRequest(http.MethodPost, "/deployments", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestStartHTTPServerStopsOnCancel(t *testing.T) {
	srv := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.StartHTTPServer(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}

	require.ErrorIs(t, srv.StartHTTPServer(context.Background()), errServerAlreadyRunning)
}
