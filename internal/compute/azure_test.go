package compute

import (
	"context"
	"errors"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVMs struct {
	statuses []*armcompute.InstanceViewStatus
	viewErr  error
	startErr error
	stopErr  error
}

func (f *fakeVMs) InstanceView(_ context.Context, _ string, _ string, _ *armcompute.VirtualMachinesClientInstanceViewOptions) (armcompute.VirtualMachinesClientInstanceViewResponse, error) {
	if f.viewErr != nil {
		return armcompute.VirtualMachinesClientInstanceViewResponse{}, f.viewErr
	}
	return armcompute.VirtualMachinesClientInstanceViewResponse{
		VirtualMachineInstanceView: armcompute.VirtualMachineInstanceView{Statuses: f.statuses},
	}, nil
}

func (f *fakeVMs) BeginStart(_ context.Context, _ string, _ string, _ *armcompute.VirtualMachinesClientBeginStartOptions) (*runtime.Poller[armcompute.VirtualMachinesClientStartResponse], error) {
	return nil, f.startErr
}

func (f *fakeVMs) BeginDeallocate(_ context.Context, _ string, _ string, _ *armcompute.VirtualMachinesClientBeginDeallocateOptions) (*runtime.Poller[armcompute.VirtualMachinesClientDeallocateResponse], error) {
	return nil, f.stopErr
}

type fakeIPs struct {
	addr *string
	err  error
}

func (f *fakeIPs) Get(_ context.Context, _ string, _ string, _ *armnetwork.PublicIPAddressesClientGetOptions) (armnetwork.PublicIPAddressesClientGetResponse, error) {
	if f.err != nil {
		return armnetwork.PublicIPAddressesClientGetResponse{}, f.err
	}
	return armnetwork.PublicIPAddressesClientGetResponse{
		PublicIPAddress: armnetwork.PublicIPAddress{
			Properties: &armnetwork.PublicIPAddressPropertiesFormat{IPAddress: f.addr},
		},
	}, nil
}

var testAzureConfig = AzureConfig{
	SubscriptionID: "sub",
	ResourceGroup:  "rg-minecraft",
	VMName:         "vm-minecraft",
	PublicIPName:   "ip-minecraft",
}

func TestAzureVM_Status(t *testing.T) {
	tests := []struct {
		code string
		want PowerStatus
	}{
		{"PowerState/running", PowerRunning},
		{"PowerState/deallocated", PowerDeallocated},
		{"PowerState/deallocating", PowerDeallocating},
		{"PowerState/stopped", PowerStopped},
		{"PowerState/starting", PowerStarting},
		{"PowerState/hibernated", PowerStatus("Hibernated")},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			vms := &fakeVMs{statuses: []*armcompute.InstanceViewStatus{
				{Code: to.Ptr("ProvisioningState/succeeded")},
				{Code: to.Ptr(tt.code)},
			}}
			vm := NewAzureVMWithClients(testAzureConfig, vms, nil)

			status, err := vm.Status(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestAzureVM_StatusWithoutPowerState(t *testing.T) {
	vms := &fakeVMs{statuses: []*armcompute.InstanceViewStatus{
		{Code: to.Ptr("ProvisioningState/creating")},
		nil,
	}}
	vm := NewAzureVMWithClients(testAzureConfig, vms, nil)

	status, err := vm.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PowerUnknown, status)
}

func TestAzureVM_StatusError(t *testing.T) {
	apiErr := errors.New("AuthorizationFailed")
	vm := NewAzureVMWithClients(testAzureConfig, &fakeVMs{viewErr: apiErr}, nil)

	_, err := vm.Status(context.Background())
	require.ErrorIs(t, err, apiErr)
	assert.Contains(t, err.Error(), "vm-minecraft")
}

func TestAzureVM_StartStopErrors(t *testing.T) {
	startErr := errors.New("start rejected")
	stopErr := errors.New("deallocate rejected")
	vm := NewAzureVMWithClients(testAzureConfig, &fakeVMs{startErr: startErr, stopErr: stopErr}, nil)

	_, err := vm.Start(context.Background())
	require.ErrorIs(t, err, startErr)

	_, err = vm.Stop(context.Background())
	require.ErrorIs(t, err, stopErr)
}

func TestAzureVM_PublicAddress(t *testing.T) {
	vm := NewAzureVMWithClients(testAzureConfig, &fakeVMs{}, &fakeIPs{addr: to.Ptr("20.1.2.3")})
	addr, err := vm.PublicAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "20.1.2.3", addr)
}

func TestAzureVM_PublicAddressUnassigned(t *testing.T) {
	vm := NewAzureVMWithClients(testAzureConfig, &fakeVMs{}, &fakeIPs{})
	_, err := vm.PublicAddress(context.Background())
	require.Error(t, err)

	vm = NewAzureVMWithClients(testAzureConfig, &fakeVMs{}, nil)
	_, err = vm.PublicAddress(context.Background())
	require.Error(t, err)
}
