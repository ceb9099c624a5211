package compute

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"
)

const powerStatePrefix = "PowerState/"

// AzureConfig configures the Azure VM provider.
type AzureConfig struct {
	SubscriptionID string
	ResourceGroup  string
	VMName         string
	PublicIPName   string // optional, used to resolve the server address

	// Service principal credentials. When ClientSecret is empty the default
	// credential chain (env, managed identity, az CLI) is used.
	TenantID     string
	ClientID     string
	ClientSecret string
}

// VirtualMachinesAPI is the subset of armcompute.VirtualMachinesClient the provider uses.
type VirtualMachinesAPI interface {
	InstanceView(ctx context.Context, resourceGroupName string, vmName string, options *armcompute.VirtualMachinesClientInstanceViewOptions) (armcompute.VirtualMachinesClientInstanceViewResponse, error)
	BeginStart(ctx context.Context, resourceGroupName string, vmName string, options *armcompute.VirtualMachinesClientBeginStartOptions) (*runtime.Poller[armcompute.VirtualMachinesClientStartResponse], error)
	BeginDeallocate(ctx context.Context, resourceGroupName string, vmName string, options *armcompute.VirtualMachinesClientBeginDeallocateOptions) (*runtime.Poller[armcompute.VirtualMachinesClientDeallocateResponse], error)
}

// PublicIPAPI is the subset of armnetwork.PublicIPAddressesClient the provider uses.
type PublicIPAPI interface {
	Get(ctx context.Context, resourceGroupName string, publicIPAddressName string, options *armnetwork.PublicIPAddressesClientGetOptions) (armnetwork.PublicIPAddressesClientGetResponse, error)
}

// AzureVM implements Infrastructure for a single Azure virtual machine.
type AzureVM struct {
	vms VirtualMachinesAPI
	ips PublicIPAPI
	cfg AzureConfig
	now func() time.Time
}

// NewAzureCredential builds the credential described by cfg.
func NewAzureCredential(cfg AzureConfig) (azcore.TokenCredential, error) {
	if cfg.ClientSecret != "" {
		cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("azure: client secret credential: %w", err)
		}
		return cred, nil
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azure: default credential: %w", err)
	}
	return cred, nil
}

// NewAzureVM creates the Azure provider and its SDK clients.
func NewAzureVM(cfg AzureConfig, cred azcore.TokenCredential) (*AzureVM, *armcompute.VirtualMachinesClient, error) {
	if cfg.SubscriptionID == "" || cfg.ResourceGroup == "" || cfg.VMName == "" {
		return nil, nil, fmt.Errorf("azure: subscription, resource group and VM name are required")
	}

	vms, err := armcompute.NewVirtualMachinesClient(cfg.SubscriptionID, cred, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("azure: virtual machines client: %w", err)
	}

	var ips PublicIPAPI
	if cfg.PublicIPName != "" {
		ipClient, err := armnetwork.NewPublicIPAddressesClient(cfg.SubscriptionID, cred, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("azure: public IP client: %w", err)
		}
		ips = ipClient
	}

	return NewAzureVMWithClients(cfg, vms, ips), vms, nil
}

// NewAzureVMWithClients creates the provider from existing clients. ips may be nil.
func NewAzureVMWithClients(cfg AzureConfig, vms VirtualMachinesAPI, ips PublicIPAPI) *AzureVM {
	return &AzureVM{vms: vms, ips: ips, cfg: cfg, now: time.Now}
}

func (a *AzureVM) Status(ctx context.Context) (PowerStatus, error) {
	resp, err := a.vms.InstanceView(ctx, a.cfg.ResourceGroup, a.cfg.VMName, nil)
	if err != nil {
		return "", fmt.Errorf("azure: InstanceView failed for %s: %w", a.cfg.VMName, err)
	}

	for _, st := range resp.Statuses {
		if st == nil || st.Code == nil {
			continue
		}
		if code := *st.Code; strings.HasPrefix(code, powerStatePrefix) {
			return azurePowerStatus(strings.TrimPrefix(code, powerStatePrefix)), nil
		}
	}
	// A VM being created or deleted has no power state yet.
	return PowerUnknown, nil
}

func (a *AzureVM) Start(ctx context.Context) (*Ack, error) {
	poller, err := a.vms.BeginStart(ctx, a.cfg.ResourceGroup, a.cfg.VMName, nil)
	if err != nil {
		return nil, fmt.Errorf("azure: Start failed for %s: %w", a.cfg.VMName, err)
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return nil, fmt.Errorf("azure: Start did not complete for %s: %w", a.cfg.VMName, err)
	}
	return a.ack(ActionStart, PowerRunning), nil
}

// Stop deallocates the VM. A plain power-off keeps compute billing running.
func (a *AzureVM) Stop(ctx context.Context) (*Ack, error) {
	poller, err := a.vms.BeginDeallocate(ctx, a.cfg.ResourceGroup, a.cfg.VMName, nil)
	if err != nil {
		return nil, fmt.Errorf("azure: Deallocate failed for %s: %w", a.cfg.VMName, err)
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return nil, fmt.Errorf("azure: Deallocate did not complete for %s: %w", a.cfg.VMName, err)
	}
	return a.ack(ActionStop, PowerDeallocated), nil
}

// PublicAddress returns the public IP currently attached to the VM.
func (a *AzureVM) PublicAddress(ctx context.Context) (string, error) {
	if a.ips == nil {
		return "", fmt.Errorf("azure: no public IP resource configured")
	}
	resp, err := a.ips.Get(ctx, a.cfg.ResourceGroup, a.cfg.PublicIPName, nil)
	if err != nil {
		return "", fmt.Errorf("azure: public IP lookup failed for %s: %w", a.cfg.PublicIPName, err)
	}
	if resp.Properties == nil || resp.Properties.IPAddress == nil {
		return "", fmt.Errorf("azure: public IP %s has no address assigned", a.cfg.PublicIPName)
	}
	return *resp.Properties.IPAddress, nil
}

func (a *AzureVM) ack(action Action, status PowerStatus) *Ack {
	return &Ack{
		Provider:  "azure",
		MachineID: a.cfg.VMName,
		Action:    action,
		Status:    status,
		IssuedAt:  a.now().UTC(),
	}
}

func azurePowerStatus(state string) PowerStatus {
	switch state {
	case "running":
		return PowerRunning
	case "deallocated":
		return PowerDeallocated
	case "stopped":
		return PowerStopped
	case "starting":
		return PowerStarting
	case "stopping":
		return PowerStopping
	case "deallocating":
		return PowerDeallocating
	default:
		return titleStatus(state)
	}
}
