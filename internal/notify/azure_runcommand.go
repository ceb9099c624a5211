package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"
)

// RunCommandAPI is the subset of armcompute.VirtualMachinesClient used here.
type RunCommandAPI interface {
	BeginRunCommand(ctx context.Context, resourceGroupName string, vmName string, parameters armcompute.RunCommandInput, options *armcompute.VirtualMachinesClientBeginRunCommandOptions) (*runtime.Poller[armcompute.VirtualMachinesClientRunCommandResponse], error)
}

// AzureRunCommand runs the console command on the Azure VM with RunShellScript.
type AzureRunCommand struct {
	client        RunCommandAPI
	resourceGroup string
	vmName        string
	script        string
}

// NewAzureRunCommand creates a RunCommand notifier.
func NewAzureRunCommand(client RunCommandAPI, resourceGroup, vmName, script string) *AzureRunCommand {
	return &AzureRunCommand{
		client:        client,
		resourceGroup: resourceGroup,
		vmName:        vmName,
		script:        script,
	}
}

func (a *AzureRunCommand) SendStopDirective(ctx context.Context) error {
	poller, err := a.client.BeginRunCommand(ctx, a.resourceGroup, a.vmName, armcompute.RunCommandInput{
		CommandID: to.Ptr("RunShellScript"),
		Script:    []*string{to.Ptr(a.script)},
	}, nil)
	if err != nil {
		return fmt.Errorf("azure: RunCommand failed for %s: %w", a.vmName, err)
	}

	res, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return fmt.Errorf("azure: RunCommand did not complete for %s: %w", a.vmName, err)
	}

	// RunShellScript reports stderr as a second status entry
	for _, st := range res.Value {
		if st == nil || st.Code == nil || st.Message == nil {
			continue
		}
		if strings.Contains(*st.Code, "StdErr") && strings.TrimSpace(*st.Message) != "" {
			return fmt.Errorf("azure: console command failed on %s: %s", a.vmName, strings.TrimSpace(*st.Message))
		}
	}
	return nil
}
