package main

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"github.com/opencraft/opencraft/internal/compute"
	"github.com/opencraft/opencraft/internal/config"
	"github.com/opencraft/opencraft/internal/notify"
	"github.com/opencraft/opencraft/internal/probe"
)

// backend is the provider selected by configuration plus the SDK handles the
// probe and notifier may share with it.
type backend struct {
	infra    compute.Infrastructure
	azureVM  *compute.AzureVM
	azureVMs *armcompute.VirtualMachinesClient
	awsCfg   *aws.Config
}

func newBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.Provider {
	case "azure":
		azCfg := compute.AzureConfig{
			SubscriptionID: cfg.AzureSubscriptionID,
			ResourceGroup:  cfg.AzureResourceGroup,
			VMName:         cfg.AzureVMName,
			PublicIPName:   cfg.AzurePublicIPName,
			TenantID:       cfg.AzureTenantID,
			ClientID:       cfg.AzureClientID,
			ClientSecret:   cfg.AzureClientSecret,
		}
		cred, err := compute.NewAzureCredential(azCfg)
		if err != nil {
			return nil, err
		}
		vm, vms, err := compute.NewAzureVM(azCfg, cred)
		if err != nil {
			return nil, err
		}
		return &backend{infra: vm, azureVM: vm, azureVMs: vms}, nil

	case "ec2":
		ec2Cfg := compute.EC2Config{
			Region:          cfg.EC2Region,
			AccessKeyID:     cfg.EC2AccessKeyID,
			SecretAccessKey: cfg.EC2SecretAccessKey,
			InstanceID:      cfg.EC2InstanceID,
		}
		awsCfg, err := compute.LoadAWSConfig(ctx, ec2Cfg)
		if err != nil {
			return nil, err
		}
		inst, err := compute.NewEC2Instance(awsCfg, ec2Cfg)
		if err != nil {
			return nil, err
		}
		return &backend{infra: inst, awsCfg: &awsCfg}, nil

	case "fly":
		m, err := compute.NewFlyMachine(compute.FlyConfig{
			AppName:   cfg.FlyAppName,
			MachineID: cfg.FlyMachineID,
			Token:     cfg.FlyAPIToken,
		})
		if err != nil {
			return nil, err
		}
		return &backend{infra: m}, nil

	case "local":
		return &backend{infra: compute.NewLocalVM("local", compute.PowerDeallocated)}, nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// serverAddress resolves the probe target: the configured address, else the
// Azure VM's current public IP.
func (b *backend) serverAddress(cfg *config.Config) (probe.AddressFunc, error) {
	if cfg.ServerAddress != "" {
		return probe.StaticAddress(cfg.ServerAddress), nil
	}
	if b.azureVM != nil && cfg.AzurePublicIPName != "" {
		return b.azureVM.PublicAddress, nil
	}
	return nil, fmt.Errorf("no server address configured")
}

// newNotifier returns nil when no notifier is configured. The returned close
// func is never nil.
func (b *backend) newNotifier(cfg *config.Config, logger *zap.Logger) (notify.Notifier, func(), error) {
	noop := func() {}
	switch cfg.Notifier {
	case "":
		logger.Info("no stop notifier configured; power off will not warn the game server")
		return nil, noop, nil

	case "discord":
		d, err := notify.NewDiscord(notify.DiscordConfig{
			BotToken:  cfg.DiscordBotToken,
			ChannelID: cfg.DiscordChannelID,
			Command:   cfg.StopCommand,
		})
		if err != nil {
			return nil, noop, err
		}
		return d, noop, nil

	case "nats":
		n, err := notify.NewNATS(cfg.NATSURL, cfg.NATSConsoleSubject, cfg.StopCommand)
		if err != nil {
			return nil, noop, err
		}
		return n, n.Close, nil

	case "ssm":
		if b.awsCfg == nil {
			return nil, noop, fmt.Errorf("ssm notifier requires the ec2 provider")
		}
		return notify.NewSSM(ssm.NewFromConfig(*b.awsCfg), cfg.EC2InstanceID, cfg.StopScript), noop, nil

	case "azure-run-command":
		if b.azureVMs == nil {
			return nil, noop, fmt.Errorf("azure-run-command notifier requires the azure provider")
		}
		return notify.NewAzureRunCommand(b.azureVMs, cfg.AzureResourceGroup, cfg.AzureVMName, cfg.StopScript), noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown notifier %q", cfg.Notifier)
	}
}
