package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/docopt/docopt-go"

	"github.com/golang/glog"

	"golang.org/x/term"

	"github.com/yxeri/roleOOC/roleooc"
)

const DefaultUrl = "wss://roleooc.thethirdgift.com"

const Version = "0.1.0-local"

func main() {
	usage := fmt.Sprintf(
		`roleOOC control.

The default url is:
    url: %s

Usage:
    roleoocctl login --username=<username> [--password=<password>]
        [--url=<url>]
        [--data_dir=<data_dir>]
    roleoocctl logout [--data_dir=<data_dir>]
    roleoocctl rooms [--url=<url>] [--data_dir=<data_dir>]
    roleoocctl send --room=<room_id> --text=<text>
        [--url=<url>]
        [--data_dir=<data_dir>]
    roleoocctl watch [--url=<url>] [--data_dir=<data_dir>]

Options:
    -h --help                Show this screen.
    --version                Show version.
    --url=<url>
    --username=<username>
    --password=<password>
    --room=<room_id>
    --text=<text>
    --data_dir=<data_dir>    Local storage directory [default: ~/.roleooc].`,
		DefaultUrl,
	)

	opts, err := docopt.ParseArgs(usage, os.Args[1:], Version)
	if err != nil {
		panic(err)
	}

	if login_, _ := opts.Bool("login"); login_ {
		login(opts)
	} else if logout_, _ := opts.Bool("logout"); logout_ {
		logout(opts)
	} else if rooms_, _ := opts.Bool("rooms"); rooms_ {
		rooms(opts)
	} else if send_, _ := opts.Bool("send"); send_ {
		send(opts)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		watch(opts)
	}
}

func newClient(ctx context.Context, opts docopt.Opts) *roleooc.Client {
	var url string
	if urlAny := opts["--url"]; urlAny != nil {
		url = urlAny.(string)
	} else {
		url = DefaultUrl
	}

	var dataDir string
	if dataDirAny := opts["--data_dir"]; dataDirAny != nil {
		dataDir = dataDirAny.(string)
	} else {
		dataDir = "~/.roleooc"
	}
	if strings.HasPrefix(dataDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			panic(err)
		}
		dataDir = filepath.Join(home, dataDir[2:])
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		panic(err)
	}

	client, err := roleooc.NewClientWithDefaults(ctx, url, filepath.Join(dataDir, "local.db"))
	if err != nil {
		panic(err)
	}
	return client
}

func signalCtx() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
}

func login(opts docopt.Opts) {
	ctx, cancel := signalCtx()
	defer cancel()

	username := opts["--username"].(string)

	var password string
	if passwordAny := opts["--password"]; passwordAny != nil {
		password = passwordAny.(string)
	} else {
		fmt.Print("password: ")
		passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			panic(err)
		}
		password = string(passwordBytes)
	}

	client := newClient(ctx, opts)
	defer client.Close()

	done := make(chan error, 1)
	awaitOnline(ctx, client)
	client.Login(username, password, func(data roleooc.Params, err error) {
		done <- err
	})

	select {
	case <-ctx.Done():
	case err := <-done:
		if err != nil {
			fmt.Printf("login error: %s\n", err)
			os.Exit(1)
		}
		userId, _ := client.Session.UserId()
		fmt.Printf("logged in as %s (user_id: %s)\n", username, userId)
	}
}

func logout(opts docopt.Opts) {
	ctx, cancel := signalCtx()
	defer cancel()

	client := newClient(ctx, opts)
	defer client.Close()

	client.Logout()
	fmt.Println("logged out")
}

func rooms(opts docopt.Opts) {
	ctx, cancel := signalCtx()
	defer cancel()

	client := newClient(ctx, opts)
	defer client.Close()

	awaitOnline(ctx, client)

	select {
	case <-ctx.Done():
		return
	case <-client.Rooms.Ready():
	}

	user := client.Users.CurrentUser()
	for _, room := range client.Rooms.FollowedRooms(user) {
		roomName, _ := room["roomName"].(string)
		fmt.Printf("%s  %s\n", room.ObjectId(), roomName)
	}
}

func send(opts docopt.Opts) {
	ctx, cancel := signalCtx()
	defer cancel()

	roomId := opts["--room"].(string)
	text := opts["--text"].(string)

	client := newClient(ctx, opts)
	defer client.Close()

	awaitOnline(ctx, client)

	done := make(chan error, 1)
	client.Messages.SendMessage(roleooc.Params{
		"roomId":      roomId,
		"messageType": roleooc.MessageTypeChat,
		"text":        []string{text},
	}, nil, func(data roleooc.Params, err error) {
		done <- err
	})

	select {
	case <-ctx.Done():
	case err := <-done:
		if err != nil {
			fmt.Printf("send error: %s\n", err)
			os.Exit(1)
		}
		fmt.Println("sent")
	}
}

func watch(opts docopt.Opts) {
	ctx, cancel := signalCtx()
	defer cancel()

	client := newClient(ctx, opts)
	defer client.Close()

	dispose := client.Events.Subscribe("message", func(payload any) {
		change, ok := payload.(roleooc.ChangePayload)
		if !ok {
			return
		}
		message := change.Record

		var text string
		if textList, ok := message["text"].([]any); ok && len(textList) > 0 {
			textStr, _ := textList[0].(string)
			text = textStr
		}

		fmt.Printf(
			"[%s] %s: %s\n",
			change.ChangeType,
			client.Users.IdentityName(creatorId(message)),
			text,
		)
	})
	defer dispose()

	glog.V(2).Infof("[ctl]watching\n")

	select {
	case <-ctx.Done():
	}
}

func creatorId(message roleooc.Record) string {
	if ownerAliasId, ok := message["ownerAliasId"].(string); ok && ownerAliasId != "" {
		return ownerAliasId
	}
	ownerId, _ := message["ownerId"].(string)
	return ownerId
}

func awaitOnline(ctx context.Context, client *roleooc.Client) {
	online := make(chan struct{}, 1)
	dispose := client.Events.Subscribe(roleooc.EventStartup, func(payload any) {
		select {
		case online <- struct{}{}:
		default:
		}
	})
	defer dispose()

	if client.Transport.IsOnline() {
		return
	}

	select {
	case <-ctx.Done():
	case <-online:
	}
}
