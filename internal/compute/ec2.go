package compute

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// EC2Config configures the EC2 provider.
type EC2Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	InstanceID      string
}

// EC2API is the subset of the EC2 client the provider uses.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
}

// EC2Instance implements Infrastructure for a single EC2 instance.
type EC2Instance struct {
	client EC2API
	cfg    EC2Config
	now    func() time.Time
}

// LoadAWSConfig returns an AWS config for cfg. If AccessKeyID is empty, the default
// credential chain (IAM instance profile, env vars, etc.) is used.
func LoadAWSConfig(ctx context.Context, cfg EC2Config) (aws.Config, error) {
	if cfg.AccessKeyID != "" {
		return aws.Config{
			Region: cfg.Region,
			Credentials: credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			),
		}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("ec2: failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// NewEC2Instance creates the EC2 provider.
func NewEC2Instance(awsCfg aws.Config, cfg EC2Config) (*EC2Instance, error) {
	if cfg.InstanceID == "" {
		return nil, fmt.Errorf("ec2: instance ID is required")
	}
	return NewEC2InstanceWithClient(ec2.NewFromConfig(awsCfg), cfg), nil
}

// NewEC2InstanceWithClient creates the provider from an existing client.
func NewEC2InstanceWithClient(client EC2API, cfg EC2Config) *EC2Instance {
	return &EC2Instance{client: client, cfg: cfg, now: time.Now}
}

func (p *EC2Instance) Status(ctx context.Context) (PowerStatus, error) {
	result, err := p.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{p.cfg.InstanceID},
	})
	if err != nil {
		return "", fmt.Errorf("ec2: DescribeInstances failed for %s: %w", p.cfg.InstanceID, err)
	}

	for _, res := range result.Reservations {
		for _, inst := range res.Instances {
			if inst.State == nil {
				return PowerUnknown, nil
			}
			return ec2PowerStatus(inst.State.Name), nil
		}
	}
	return "", fmt.Errorf("ec2: instance %s not found", p.cfg.InstanceID)
}

func (p *EC2Instance) Start(ctx context.Context) (*Ack, error) {
	out, err := p.client.StartInstances(ctx, &ec2.StartInstancesInput{
		InstanceIds: []string{p.cfg.InstanceID},
	})
	if err != nil {
		return nil, fmt.Errorf("ec2: StartInstances failed for %s: %w", p.cfg.InstanceID, err)
	}

	status := PowerStarting
	for _, change := range out.StartingInstances {
		if change.CurrentState != nil {
			status = ec2PowerStatus(change.CurrentState.Name)
		}
	}
	return p.ack(ActionStart, status), nil
}

func (p *EC2Instance) Stop(ctx context.Context) (*Ack, error) {
	out, err := p.client.StopInstances(ctx, &ec2.StopInstancesInput{
		InstanceIds: []string{p.cfg.InstanceID},
	})
	if err != nil {
		return nil, fmt.Errorf("ec2: StopInstances failed for %s: %w", p.cfg.InstanceID, err)
	}

	status := PowerStopping
	for _, change := range out.StoppingInstances {
		if change.CurrentState != nil {
			status = ec2PowerStatus(change.CurrentState.Name)
		}
	}
	return p.ack(ActionStop, status), nil
}

func (p *EC2Instance) ack(action Action, status PowerStatus) *Ack {
	return &Ack{
		Provider:  "ec2",
		MachineID: p.cfg.InstanceID,
		Action:    action,
		Status:    status,
		IssuedAt:  p.now().UTC(),
	}
}

// A stopped EC2 instance is not billed for compute, which is what Deallocated
// means on Azure.
func ec2PowerStatus(name ec2types.InstanceStateName) PowerStatus {
	switch name {
	case ec2types.InstanceStateNameRunning:
		return PowerRunning
	case ec2types.InstanceStateNameStopped:
		return PowerDeallocated
	case ec2types.InstanceStateNamePending:
		return PowerStarting
	case ec2types.InstanceStateNameStopping, ec2types.InstanceStateNameShuttingDown:
		return PowerStopping
	default:
		return titleStatus(string(name))
	}
}
