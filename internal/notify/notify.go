package notify

import "context"

// DefaultStopCommand is the console command that shuts a Minecraft server down.
const DefaultStopCommand = "stop"

// Notifier delivers the graceful-stop directive to the game server console.
type Notifier interface {
	SendStopDirective(ctx context.Context) error
}
