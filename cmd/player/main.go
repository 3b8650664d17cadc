package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"

	"github.com/pcranner/soundshelf/api"
	"github.com/pcranner/soundshelf/internal/catalog"
	"github.com/pcranner/soundshelf/internal/config"
	"github.com/pcranner/soundshelf/internal/media"
	"github.com/pcranner/soundshelf/internal/playback"
	"github.com/pcranner/soundshelf/pkg/events"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadOrCreate(config.GetConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
	log.Debug().Str("installation_id", cfg.InstallationID).Msg("starting")

	cat, err := catalog.New(cfg.PlaylistsDir, log)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}

	dispatcher := events.NewDispatcher(log)
	defer dispatcher.Close()

	engine := playback.New(playback.NewBeepBackend(), dispatcher, log)
	defer engine.Close()
	engine.SetVolume(cfg.DefaultVolume)

	ctrl := &controller{
		catalog: cat,
		engine:  engine,
		queue:   playback.NewQueue(),
		log:     log,
	}
	dispatcher.SetHandler(ctrl)

	return ctrl.repl()
}

// controller is the single registered event handler and the interactive
// command surface. Everything it does goes through catalog calls, engine
// calls and the three playback callbacks.
type controller struct {
	catalog *catalog.Catalog
	engine  *playback.Engine
	queue   *playback.Queue
	log     zerolog.Logger

	mu         sync.Mutex
	collection string
}

// OnPositionUpdate implements events.Handler.
func (c *controller) OnPositionUpdate(position, duration float64) {
	fmt.Printf("\r%s / %s  ", formatSeconds(position), formatSeconds(duration))
}

// OnTrackEnd implements events.Handler. Advancing is the controller's call,
// not the tracker's: consult the queue and load whatever comes next.
func (c *controller) OnTrackEnd() {
	fmt.Println()
	next := c.queue.Next()
	if next == nil {
		fmt.Println("end of queue")
		return
	}
	c.playTrack(next)
}

// OnError implements events.Handler.
func (c *controller) OnError(message string) {
	fmt.Printf("\nplayer error: %s\n", message)
}

func (c *controller) playTrack(track *api.Track) {
	c.mu.Lock()
	id := c.collection
	c.mu.Unlock()

	path := c.catalog.TrackPath(id, track.Path)
	if err := c.engine.Load(path); err != nil {
		return // already surfaced via OnError
	}
	if err := c.engine.Play(); err != nil {
		return
	}
	fmt.Printf("playing %s\n", track.DisplayName)
}

func (c *controller) repl() error {
	rl, err := readline.New("soundshelf> ")
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if quit := c.dispatch(fields[0], fields[1:]); quit {
			return nil
		}
	}
}

func (c *controller) dispatch(cmd string, args []string) bool {
	var err error
	switch cmd {
	case "ls":
		err = c.cmdList()
	case "use":
		err = c.cmdUse(args)
	case "tracks":
		err = c.cmdTracks()
	case "play":
		err = c.cmdPlay(args)
	case "pause":
		err = c.engine.Pause()
	case "resume":
		err = c.engine.Play()
	case "stop":
		c.engine.Stop()
	case "next":
		c.advance(c.queue.Next())
	case "prev":
		c.advance(c.queue.Previous())
	case "seek":
		err = c.cmdSeek(args)
	case "vol":
		err = c.cmdVolume(args)
	case "speed":
		err = c.cmdSpeed(args)
	case "shuffle":
		c.cmdShuffle()
	case "repeat":
		err = c.cmdRepeat(args)
	case "refresh":
		err = c.cmdRefresh()
	case "reorder":
		err = c.cmdReorder(args)
	case "export":
		err = c.cmdExport(args)
	case "stats":
		err = c.cmdStats()
	case "status":
		c.cmdStatus()
	case "help":
		printHelp()
	case "quit", "exit":
		return true
	default:
		fmt.Printf("unknown command %q, try help\n", cmd)
	}

	if err != nil {
		fmt.Printf("error: %v\n", err)
	}
	return false
}

func (c *controller) cmdList() error {
	collections, err := c.catalog.ListCollections()
	if err != nil {
		return err
	}
	for _, col := range collections {
		fmt.Printf("%-20s %s (%d tracks)\n", col.ID, col.DisplayName, len(col.Tracks))
	}
	return nil
}

func (c *controller) cmdUse(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: use <collection>")
	}

	tracks, err := c.catalog.Tracks(args[0])
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.collection = args[0]
	c.mu.Unlock()
	c.queue.Set(tracks)
	fmt.Printf("using %s (%d tracks)\n", args[0], len(tracks))
	return nil
}

func (c *controller) cmdTracks() error {
	id, err := c.current()
	if err != nil {
		return err
	}

	tracks, err := c.catalog.Tracks(id)
	if err != nil {
		return err
	}
	for i, track := range tracks {
		fmt.Printf("%3d. %s (%s)\n", i+1, track.DisplayName, track.Path)
	}
	return nil
}

func (c *controller) cmdPlay(args []string) error {
	if len(args) == 0 {
		return c.engine.Play()
	}

	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("usage: play [track-number]")
	}
	if err := c.queue.JumpTo(n - 1); err != nil {
		return err
	}

	track := c.queue.Current()
	if track == nil {
		return fmt.Errorf("empty queue, try use <collection>")
	}

	info := media.ReadInfo(c.catalog.TrackPath(c.mustCurrent(), track.Path))
	c.log.Debug().Str("title", info.Title).Str("artist", info.Artist).Msg("selected track")
	c.playTrack(track)
	return nil
}

func (c *controller) advance(track *api.Track) {
	if track == nil {
		fmt.Println("end of queue")
		c.engine.Stop()
		return
	}
	c.playTrack(track)
}

func (c *controller) cmdSeek(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: seek <seconds>")
	}
	seconds, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("usage: seek <seconds>")
	}
	return c.engine.Seek(seconds)
}

func (c *controller) cmdVolume(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: vol <0..1>")
	}
	level, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("usage: vol <0..1>")
	}
	c.engine.SetVolume(level)
	return nil
}

func (c *controller) cmdSpeed(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: speed <0.5..2>")
	}
	speed, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("usage: speed <0.5..2>")
	}
	c.engine.SetSpeed(speed)
	fmt.Println("note: speed is recorded but the backend may not change the audible rate")
	return nil
}

func (c *controller) cmdShuffle() {
	if c.queue.IsShuffled() {
		c.queue.Unshuffle()
		fmt.Println("shuffle off")
	} else {
		c.queue.Shuffle()
		fmt.Println("shuffle on")
	}
}

func (c *controller) cmdRepeat(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: repeat <none|all|one>")
	}
	switch args[0] {
	case "none":
		c.queue.SetRepeatMode(playback.RepeatNone)
	case "all":
		c.queue.SetRepeatMode(playback.RepeatAll)
	case "one":
		c.queue.SetRepeatMode(playback.RepeatOne)
	default:
		return fmt.Errorf("usage: repeat <none|all|one>")
	}
	return nil
}

func (c *controller) cmdRefresh() error {
	id, err := c.current()
	if err != nil {
		return err
	}
	if err := c.catalog.Refresh(id); err != nil {
		return err
	}

	tracks, err := c.catalog.Tracks(id)
	if err != nil {
		return err
	}
	c.queue.Set(tracks)
	fmt.Printf("refreshed %s (%d tracks)\n", id, len(tracks))
	return nil
}

func (c *controller) cmdReorder(args []string) error {
	id, err := c.current()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: reorder <path>...")
	}
	if err := c.catalog.Reorder(id, args); err != nil {
		return err
	}

	tracks, err := c.catalog.Tracks(id)
	if err != nil {
		return err
	}
	c.queue.Set(tracks)
	return nil
}

func (c *controller) cmdExport(args []string) error {
	id, err := c.current()
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: export <m3u|pls>")
	}

	path, err := c.catalog.Export(id, api.ExportFormat(args[0]))
	if err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", path)
	return nil
}

func (c *controller) cmdStats() error {
	id, err := c.current()
	if err != nil {
		return err
	}

	stats, err := c.catalog.Stats(id)
	if err != nil {
		return err
	}
	fmt.Printf("%d tracks, %.2f MB, formats: %s\n",
		stats.TrackCount,
		float64(stats.TotalBytes)/(1024*1024),
		strings.Join(stats.Formats, " "))
	return nil
}

func (c *controller) cmdStatus() {
	session := c.engine.Session()
	fmt.Printf("%s", session.Status)
	if session.Track != "" {
		fmt.Printf("  %s  %s/%s", session.Track,
			formatSeconds(session.Position), formatSeconds(session.Duration))
	}
	fmt.Printf("  vol %.2f  speed %.2f\n", session.Volume, session.Speed)
}

func (c *controller) current() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collection == "" {
		return "", fmt.Errorf("no collection selected, try use <collection>")
	}
	return c.collection, nil
}

func (c *controller) mustCurrent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collection
}

func formatSeconds(s float64) string {
	total := int(s)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func printHelp() {
	fmt.Print(`commands:
  ls                      list collections
  use <collection>        select a collection and build the queue
  tracks                  list the selected collection's tracks in order
  play [n]                play (or play track n of the queue)
  pause / resume / stop   transport controls
  next / prev             move through the queue
  seek <seconds>          seek (0 is exact, anything else is best-effort)
  vol <0..1>              set volume
  speed <0.5..2>          set playback speed (soft control)
  shuffle                 toggle shuffle
  repeat <none|all|one>   set repeat mode
  refresh                 reconcile descriptor with files on disk
  reorder <path>...       set track order to the given relative paths
  export <m3u|pls>        write a playlist file
  stats                   collection statistics
  status                  playback status
  quit                    exit
`)
}
