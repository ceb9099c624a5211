package compute

import (
	"context"
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	azfake "github.com/Azure/azure-sdk-for-go/sdk/azcore/fake"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeVMsClient(t *testing.T, srv *fake.VirtualMachinesServer) *armcompute.VirtualMachinesClient {
	t.Helper()
	client, err := armcompute.NewVirtualMachinesClient("sub", &azfake.TokenCredential{}, &arm.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: fake.NewVirtualMachinesServerTransport(srv),
		},
	})
	require.NoError(t, err)
	return client
}

func TestAzureVM_StartCompletes(t *testing.T) {
	var started []string
	srv := &fake.VirtualMachinesServer{
		BeginStart: func(_ context.Context, resourceGroupName string, vmName string, _ *armcompute.VirtualMachinesClientBeginStartOptions) (resp azfake.PollerResponder[armcompute.VirtualMachinesClientStartResponse], errResp azfake.ErrorResponder) {
			started = append(started, resourceGroupName+"/"+vmName)
			resp.SetTerminalResponse(http.StatusOK, armcompute.VirtualMachinesClientStartResponse{}, nil)
			return
		},
	}
	vm := NewAzureVMWithClients(testAzureConfig, newFakeVMsClient(t, srv), nil)

	ack, err := vm.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"rg-minecraft/vm-minecraft"}, started)
	assert.Equal(t, "azure", ack.Provider)
	assert.Equal(t, "vm-minecraft", ack.MachineID)
	assert.Equal(t, ActionStart, ack.Action)
	assert.Equal(t, PowerRunning, ack.Status)
	assert.False(t, ack.IssuedAt.IsZero())
}

func TestAzureVM_StopDeallocates(t *testing.T) {
	var deallocated int
	srv := &fake.VirtualMachinesServer{
		BeginDeallocate: func(_ context.Context, _ string, _ string, _ *armcompute.VirtualMachinesClientBeginDeallocateOptions) (resp azfake.PollerResponder[armcompute.VirtualMachinesClientDeallocateResponse], errResp azfake.ErrorResponder) {
			deallocated++
			resp.SetTerminalResponse(http.StatusOK, armcompute.VirtualMachinesClientDeallocateResponse{}, nil)
			return
		},
	}
	vm := NewAzureVMWithClients(testAzureConfig, newFakeVMsClient(t, srv), nil)

	ack, err := vm.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, deallocated)
	assert.Equal(t, ActionStop, ack.Action)
	assert.Equal(t, PowerDeallocated, ack.Status)
}

func TestAzureVM_StartRejected(t *testing.T) {
	srv := &fake.VirtualMachinesServer{
		BeginStart: func(_ context.Context, _ string, _ string, _ *armcompute.VirtualMachinesClientBeginStartOptions) (resp azfake.PollerResponder[armcompute.VirtualMachinesClientStartResponse], errResp azfake.ErrorResponder) {
			errResp.SetResponseError(http.StatusConflict, "OperationNotAllowed")
			return
		},
	}
	vm := NewAzureVMWithClients(testAzureConfig, newFakeVMsClient(t, srv), nil)

	_, err := vm.Start(context.Background())
	require.Error(t, err)

	var respErr *azcore.ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, "OperationNotAllowed", respErr.ErrorCode)
}

func TestAzureVM_StatusThroughSDK(t *testing.T) {
	srv := &fake.VirtualMachinesServer{
		InstanceView: func(_ context.Context, _ string, _ string, _ *armcompute.VirtualMachinesClientInstanceViewOptions) (resp azfake.Responder[armcompute.VirtualMachinesClientInstanceViewResponse], errResp azfake.ErrorResponder) {
			code := "PowerState/deallocated"
			resp.SetResponse(http.StatusOK, armcompute.VirtualMachinesClientInstanceViewResponse{
				VirtualMachineInstanceView: armcompute.VirtualMachineInstanceView{
					Statuses: []*armcompute.InstanceViewStatus{{Code: &code}},
				},
			}, nil)
			return
		},
	}
	vm := NewAzureVMWithClients(testAzureConfig, newFakeVMsClient(t, srv), nil)

	status, err := vm.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PowerDeallocated, status)
}
