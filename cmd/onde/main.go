package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/ondelive/onde/internal/config"
	"github.com/ondelive/onde/internal/eventbus"
	"github.com/ondelive/onde/internal/logging"
	"github.com/ondelive/onde/pkg/api"
	"github.com/ondelive/onde/pkg/auth"
	"github.com/ondelive/onde/pkg/chat"
	"github.com/ondelive/onde/pkg/errors"
	"github.com/ondelive/onde/pkg/hub"
	"github.com/ondelive/onde/pkg/radio"
	"github.com/ondelive/onde/pkg/socket"
)

type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	errs    errors.Handler
	bus     *eventbus.InMemoryBus
	client  *api.Client
	hub     *hub.Client
	radio   *radio.Store
	chat    *chat.Store
	socket  *socket.Client
	session *chat.LiveSession
}

func main() {
	// Optional .env; environment wins over it.
	godotenv.Load()

	var (
		configPath = flag.String("config", "", "path to config file")
		logLevel   = flag.String("log-level", "", "log level override (debug, info, warn, error)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger := logging.New(cfg.Logging)

	bus := eventbus.NewInMemoryBus(64)
	bus.Start(context.Background())
	defer bus.Stop()

	session := auth.NewSession()
	client := api.NewClient(cfg.API.BaseURL, session, api.Options{
		Timeout: cfg.API.Timeout,
		Logger:  logger,
	})

	hubClient := hub.NewClient(cfg.Hub.URL, client, logger, bus, hub.DefaultOptions())
	defer hubClient.Stop()

	radioStore := radio.NewStore(client.Radio(), bus, logger, cfg.State.Dir)
	chatStore := chat.NewStore(client.Chat(), bus, logger)
	sock := socket.NewClient(cfg.Socket.URL, session.Token, logger)
	defer sock.Disconnect()

	bridge := radio.NewBridge(hubClient, radioStore, chatStore, logger)
	bridge.Attach()
	defer bridge.Detach()

	a := &app{
		cfg:    cfg,
		logger: logger,
		errs:   errors.NewDefaultHandler(logger.Logger),
		bus:    bus,
		client: client,
		hub:    hubClient,
		radio:  radioStore,
		chat:   chatStore,
		socket: sock,
	}

	a.watchEvents()
	a.run()
}

// watchEvents prints state changes as they land on the bus.
func (a *app) watchEvents() {
	a.bus.Subscribe(eventbus.EventNowPlayingUpdated, func(e *eventbus.Event) {
		if np, ok := e.Data.(radio.NowPlaying); ok {
			fmt.Printf("\n♪ now playing: %s - %s\n> ", np.Artist, np.Title)
		}
	})
	a.bus.Subscribe(eventbus.EventChatMessageReceived, func(e *eventbus.Event) {
		if msg, ok := e.Data.(chat.Message); ok {
			fmt.Printf("\n[%s] %s\n> ", msg.User, msg.Content)
		}
	})
	a.bus.Subscribe(eventbus.EventConnectionStateChanged, func(e *eventbus.Event) {
		if state, ok := e.Data.(hub.State); ok {
			a.logger.Debug("hub state changed", "state", state.String())
		}
	})
}

func (a *app) run() {
	fmt.Println("onde client. Type 'help' for commands.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := a.dispatch(ctx, fields)
		cancel()

		if err == errQuit {
			return
		}
		if err != nil {
			a.errs.Handle(context.Background(), err)
			fmt.Println("error:", err)
		}
	}
}

var errQuit = fmt.Errorf("quit")

func (a *app) dispatch(ctx context.Context, fields []string) error {
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		printHelp()
	case "quit", "exit":
		return errQuit

	case "login":
		if len(args) < 2 {
			return fmt.Errorf("usage: login <email> <password>")
		}
		res, err := a.client.Auth().Login(ctx, api.LoginRequest{Email: args[0], Password: args[1]})
		if err != nil {
			return err
		}
		fmt.Println("logged in as", res.User.Username)
		return a.hub.Start(ctx)

	case "register":
		if len(args) < 3 {
			return fmt.Errorf("usage: register <username> <email> <password>")
		}
		res, err := a.client.Auth().Register(ctx, api.RegisterRequest{
			Username: args[0], Email: args[1], Password: args[2],
		})
		if err != nil {
			return err
		}
		fmt.Println("registered as", res.User.Username)
		return a.hub.Start(ctx)

	case "stations":
		return a.listStations(ctx)

	case "select":
		if len(args) < 1 {
			return fmt.Errorf("usage: select <station-id>")
		}
		return a.selectStation(ctx, args[0])

	case "pause":
		a.radio.Pause()
	case "stop":
		a.radio.Stop()

	case "vol":
		if len(args) < 1 {
			fmt.Printf("volume: %.2f\n", a.radio.Volume())
			return nil
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("usage: vol <0..1>")
		}
		a.radio.SetVolume(v)

	case "fav":
		if len(args) < 1 {
			return fmt.Errorf("usage: fav <station-id>")
		}
		a.radio.ToggleFavorite(args[0])
		fmt.Println("favorites:", a.radio.Favorites())
	case "favs":
		fmt.Println("favorites:", a.radio.Favorites())

	case "np":
		np, ok := a.radio.NowPlaying()
		if !ok {
			fmt.Println("nothing playing")
			return nil
		}
		elapsed := np.ElapsedAt(time.Now())
		fmt.Printf("%s - %s [%s] (%d/%ds)\n",
			np.Artist, np.Title, np.Album, int(elapsed.Seconds()), np.Duration)

	case "listeners":
		l, ok := a.radio.Listeners()
		if !ok {
			fmt.Println("no listener data yet")
			return nil
		}
		fmt.Printf("current: %d, unique: %d, total: %d\n", l.Current, l.Unique, l.Total)

	case "say":
		if len(args) < 1 {
			return fmt.Errorf("usage: say <message>")
		}
		user := "anonymous"
		if u, ok := a.client.Session().User(); ok {
			user = u.Username
		}
		return a.hub.SendChatMessage(ctx, user, strings.Join(args, " "))

	case "join":
		if len(args) < 1 {
			return fmt.Errorf("usage: join <live-id>")
		}
		return a.joinLive(ctx, args[0])

	case "leave":
		if a.session == nil {
			return fmt.Errorf("not in a live room")
		}
		if err := a.session.Leave(); err != nil {
			return err
		}
		a.session = nil
		a.chat.Clear()

	case "send":
		if a.session == nil {
			return fmt.Errorf("not in a live room, use 'join' first")
		}
		if len(args) < 1 {
			return fmt.Errorf("usage: send <message>")
		}
		_, err := a.session.Send(ctx, strings.Join(args, " "))
		return err

	case "history":
		for _, msg := range a.chat.Messages() {
			fmt.Printf("[%s] %s\n", msg.User, msg.Content)
		}

	case "media":
		items, err := a.client.Media().List(ctx)
		if err != nil {
			return err
		}
		for _, item := range items {
			fmt.Printf("%-4s %s (%d views)\n", item.ID, item.Title, item.Views)
		}

	case "state":
		fmt.Println("hub:", a.hub.State().String())
		fmt.Println("socket connected:", a.socket.IsConnected())
		fmt.Println("playing:", a.radio.IsPlaying())

	default:
		return fmt.Errorf("unknown command %q, try 'help'", cmd)
	}
	return nil
}

func (a *app) listStations(ctx context.Context) error {
	stations, err := a.client.Radio().Stations(ctx)
	if err != nil {
		return err
	}

	for _, st := range stations {
		marker := " "
		if a.radio.IsFavorite(st.ID) {
			marker = "*"
		}
		fmt.Printf("%s %-4s %-20s %s\n", marker, st.ID, st.Name, st.Genre)
	}

	// First listing doubles as startup: begin playing a default station.
	if !a.radio.Initialized() && len(stations) > 0 {
		if id, err := strconv.Atoi(stations[0].ID); err == nil {
			a.radio.InitializeFirstStation(ctx, stations[0], id)
		}
	}
	return nil
}

func (a *app) selectStation(ctx context.Context, rawID string) error {
	id, err := strconv.Atoi(rawID)
	if err != nil {
		return fmt.Errorf("invalid station id %q", rawID)
	}

	stations, err := a.client.Radio().Stations(ctx)
	if err != nil {
		return err
	}

	for _, st := range stations {
		if st.ID == rawID {
			if err := a.radio.SelectStation(ctx, id); err != nil {
				return err
			}
			a.radio.Play(st)
			return nil
		}
	}
	return fmt.Errorf("unknown station %q", rawID)
}

func (a *app) joinLive(ctx context.Context, liveID string) error {
	if a.session != nil {
		if err := a.session.Leave(); err != nil {
			a.logger.Warn("failed to leave previous room", "error", err)
		}
		a.chat.Clear()
	}

	a.session = chat.NewLiveSession(a.socket, a.chat, liveID, a.logger)
	if err := a.session.Join(); err != nil {
		a.session = nil
		return err
	}

	if err := a.session.Load(ctx, 50); err != nil {
		a.logger.Warn("failed to load chat history", "error", err)
	}
	fmt.Println("joined", liveID)
	return nil
}

func printHelp() {
	fmt.Print(`commands:
  login <email> <password>        authenticate
  register <user> <email> <pass>  create an account
  stations                        list stations (starts default playback)
  select <id>                     switch station
  pause | stop                    playback control
  vol [0..1]                      show or set volume
  fav <id> | favs                 toggle or list favorite stations
  np                              show current track
  listeners                       show listener counts
  say <message>                   send a chat message over the hub
  join <live-id>                  join a live chat room
  send <message>                  send to the joined room
  history                         print the room's messages
  leave                           leave the room
  media                           list on-demand media
  state                           show connection state
  quit
`)
}
