package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMAPI is the subset of the SSM client used by the notifier.
type SSMAPI interface {
	SendCommand(ctx context.Context, params *ssm.SendCommandInput, optFns ...func(*ssm.Options)) (*ssm.SendCommandOutput, error)
}

// SSM runs the console command on an EC2 instance through AWS Systems Manager.
type SSM struct {
	client     SSMAPI
	instanceID string
	script     string
}

// NewSSM creates an SSM notifier. script is the shell command delivering the stop
// directive to the server console (e.g. `rcon-cli stop`).
func NewSSM(client SSMAPI, instanceID, script string) *SSM {
	return &SSM{client: client, instanceID: instanceID, script: script}
}

func (s *SSM) SendStopDirective(ctx context.Context) error {
	out, err := s.client.SendCommand(ctx, &ssm.SendCommandInput{
		DocumentName: aws.String("AWS-RunShellScript"),
		InstanceIds:  []string{s.instanceID},
		Comment:      aws.String("opencraft graceful stop"),
		Parameters: map[string][]string{
			"commands": {s.script},
		},
	})
	if err != nil {
		return fmt.Errorf("ssm: SendCommand failed for %s: %w", s.instanceID, err)
	}
	if out.Command == nil || out.Command.CommandId == nil {
		return fmt.Errorf("ssm: SendCommand for %s returned no command", s.instanceID)
	}
	return nil
}
