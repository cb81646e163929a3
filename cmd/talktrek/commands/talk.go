package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/talktrek/talktrek/pkg/audio"
	"github.com/talktrek/talktrek/pkg/voice"
	"github.com/talktrek/talktrek/pkg/voice/session"
	"github.com/talktrek/talktrek/pkg/voice/tts"
	talktrek "github.com/talktrek/talktrek/sdk"
)

var (
	talkMission  string
	talkLanguage string
	talkFrom     string
	talkMode     string
	talkTextOnly bool
)

var talkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Start an interactive practice session",
	Long: `Start an interactive practice session against the practice server.

In voice mode the CLI captures your microphone, streams it to the
server, and plays the tutor's replies through your speakers. Keys:

  space - start/stop talking
  m     - mute or unmute playback
  q     - end the session

With --text-only the session runs as a text chat instead, reading
lines from stdin. Type /quit to end it.

Examples:
  talktrek talk --mission cafe-order --language Spanish
  talktrek talk --language French --mode immersive --text-only`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runTalk(ctx)
	},
}

func init() {
	talkCmd.Flags().StringVar(&talkMission, "mission", "", "mission id (empty for free conversation)")
	talkCmd.Flags().StringVar(&talkLanguage, "language", "Spanish", "language to practice")
	talkCmd.Flags().StringVar(&talkFrom, "from", "English", "your native language")
	talkCmd.Flags().StringVar(&talkMode, "mode", "teacher", "learning mode (teacher or immersive)")
	talkCmd.Flags().BoolVar(&talkTextOnly, "text-only", false, "text chat instead of voice")
}

// clientDialer adapts the SDK client to the session manager.
type clientDialer struct {
	client *talktrek.Client
}

func (d *clientDialer) Create(ctx context.Context, req session.CreateRequest) (session.Created, error) {
	resp, err := d.client.CreateVoiceSession(ctx, &talktrek.VoiceSessionRequest{
		MissionID:    req.MissionID,
		Language:     req.Language,
		FromLanguage: req.FromLanguage,
		Mode:         req.Mode,
	})
	if err != nil {
		return session.Created{}, err
	}
	return session.Created{
		SessionID: resp.SessionID,
		Mission:   resp.Mission,
		Language:  resp.Language,
		Mode:      resp.Mode,
	}, nil
}

func (d *clientDialer) End(ctx context.Context, sessionID string) error {
	return d.client.EndVoiceSession(ctx, sessionID)
}

func (d *clientDialer) Open(ctx context.Context, sessionID string) (session.Channel, error) {
	ch, err := d.client.OpenChannel(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// silentSpeaker is the playback engine for text-only sessions.
type silentSpeaker struct{}

func (silentSpeaker) Speak(ctx context.Context, text, language string) error { return nil }
func (silentSpeaker) PlayRaw(pcm []byte)                                     {}
func (silentSpeaker) SetMuted(muted bool)                                    {}
func (silentSpeaker) Cancel()                                                {}

// idleRecorder satisfies the manager when no microphone is in play.
type idleRecorder struct{ recording bool }

func (r *idleRecorder) Start() error    { r.recording = true; return nil }
func (r *idleRecorder) Stop() error     { r.recording = false; return nil }
func (r *idleRecorder) Recording() bool { return r.recording }

// talkUI consumes manager events and renders them. rawTerm switches
// line endings for raw terminal mode.
type talkUI struct {
	events       chan session.Event
	done         chan struct{}
	turnComplete chan struct{}
	rawTerm      bool
}

func newTalkUI(rawTerm bool) *talkUI {
	return &talkUI{
		events:       make(chan session.Event, 64),
		done:         make(chan struct{}),
		turnComplete: make(chan struct{}, 1),
		rawTerm:      rawTerm,
	}
}

func (ui *talkUI) notify(event session.Event) {
	select {
	case ui.events <- event:
	default:
		// Rendering is best effort, the transcript keeps the record.
	}
}

func (ui *talkUI) println(line string) {
	if ui.rawTerm {
		fmt.Print("\r\033[K" + line + "\r\n")
		return
	}
	fmt.Println(line)
}

func (ui *talkUI) run() {
	defer close(ui.done)
	for event := range ui.events {
		switch event.Kind {
		case session.EventInterim:
			if event.Interim != "" {
				fmt.Print("\r\033[K" + dimStyle.Render("… "+event.Interim))
			}
		case session.EventTranscript:
			label := assistantStyle.Render("Tutor:")
			if event.Entry.Role == "user" {
				label = userStyle.Render("You:")
			}
			ui.println(label + " " + event.Entry.Text)
		case session.EventTurnComplete:
			select {
			case ui.turnComplete <- struct{}{}:
			default:
			}
		case session.EventError:
			var verr *voice.Error
			if errors.As(event.Err, &verr) && verr.IsFatal() {
				ui.println(errorStyle.Render("connection lost: ") + verr.Message)
				continue
			}
			ui.println(errorStyle.Render("server: ") + event.Err.Error())
		case session.EventEnded:
			return
		}
	}
}

func runTalk(ctx context.Context) error {
	client := newClient()
	dialer := &clientDialer{client: client}
	meter := audio.NewLevelMeter(16000)

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if !talkTextOnly && !interactive {
		return fmt.Errorf("voice mode needs a terminal, use --text-only")
	}

	ui := newTalkUI(!talkTextOnly)

	var speaker session.Speaker
	var newRecorder session.RecorderFactory
	if talkTextOnly {
		speaker = silentSpeaker{}
		newRecorder = func(sink audio.Sink) (session.Recorder, error) {
			return &idleRecorder{}, nil
		}
	} else {
		out, err := audio.NewSpeaker()
		if err != nil {
			return fmt.Errorf("open speaker: %w (use --text-only to practice without audio)", err)
		}
		serverURL := resolveBaseURL()
		if serverURL == "" {
			serverURL = "http://localhost:8000"
		}
		player := audio.NewPlayer(tts.NewHTTPSynthesizer(serverURL, resolveAPIKey()), out)
		defer player.Close()
		speaker = player
		newRecorder = func(sink audio.Sink) (session.Recorder, error) {
			device, err := audio.NewMalgoDevice(16000, 1)
			if err != nil {
				return nil, err
			}
			return audio.NewCapture(device, audio.CaptureConfig{}, sink, meter), nil
		}
	}

	mgr := session.NewManager(session.Config{
		Dialer:      dialer,
		NewRecorder: newRecorder,
		Speaker:     speaker,
		Notify:      ui.notify,
	})

	sess, err := mgr.CreateSession(ctx, session.CreateRequest{
		MissionID:    talkMission,
		Language:     talkLanguage,
		FromLanguage: talkFrom,
		Mode:         talkMode,
	})
	if err != nil {
		return err
	}
	printVerbose("voice channel open for %s", sess.ID)

	fmt.Println(titleStyle.Render("Session " + sess.ID))
	if sess.Mission != nil {
		fmt.Printf("%s %s %s\n", sess.Mission.Icon, sess.Mission.Title,
			dimStyle.Render("("+sess.Language+", "+sess.Mode+" mode)"))
	} else {
		fmt.Println(dimStyle.Render("Free conversation (" + sess.Language + ", " + sess.Mode + " mode)"))
	}

	go ui.run()

	if talkTextOnly {
		err = textLoop(ctx, mgr, ui)
	} else {
		err = voiceLoop(ctx, mgr, meter, ui)
	}
	printSummary(mgr)
	return err
}

func textLoop(ctx context.Context, mgr *session.Manager, ui *talkUI) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" {
			break
		}
		if line == "" {
			fmt.Print("> ")
			continue
		}
		if err := mgr.SendText(line); err != nil {
			printError("send failed: %v", err)
			break
		}
		// Wait for the tutor's turn before prompting again.
		select {
		case <-ui.turnComplete:
		case <-ui.done:
			return mgr.Err()
		case <-ctx.Done():
			mgr.EndSession()
			<-ui.done
			return nil
		case <-time.After(60 * time.Second):
			printError("no reply from the server")
		}
		fmt.Print("> ")
	}
	mgr.EndSession()
	<-ui.done
	return mgr.Err()
}

func voiceLoop(ctx context.Context, mgr *session.Manager, meter *audio.LevelMeter, ui *talkUI) error {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("raw terminal: %w", err)
	}
	defer term.Restore(fd, oldState)

	keys := make(chan byte, 8)
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			if n > 0 {
				select {
				case keys <- buf[0]:
				default:
				}
			}
		}
	}()

	ui.println(dimStyle.Render("space: talk   m: mute   q: end session"))

	var levelStop chan struct{}
	stopLevels := func() {
		if levelStop != nil {
			close(levelStop)
			levelStop = nil
			fmt.Print("\r\033[K")
		}
	}
	defer stopLevels()

	muted := false
	for {
		select {
		case <-ctx.Done():
			stopLevels()
			mgr.EndSession()
			<-ui.done
			return nil
		case <-ui.done:
			stopLevels()
			return mgr.Err()
		case key := <-keys:
			switch key {
			case ' ':
				if mgr.Recording() {
					stopLevels()
					if err := mgr.StopRecording(); err != nil {
						ui.println(errorStyle.Render("mic: ") + err.Error())
					}
				} else {
					if err := mgr.StartRecording(); err != nil {
						ui.println(errorStyle.Render("mic: ") + err.Error())
						continue
					}
					levelStop = make(chan struct{})
					go renderLevels(meter, levelStop)
				}
			case 'm', 'M':
				muted = !muted
				mgr.SetMuted(muted)
				if muted {
					ui.println(dimStyle.Render("playback muted"))
				} else {
					ui.println(dimStyle.Render("playback unmuted"))
				}
			case 'q', 'Q', 3: // 3 is ctrl-c in raw mode
				stopLevels()
				mgr.EndSession()
				<-ui.done
				return mgr.Err()
			}
		}
	}
}

func renderLevels(meter *audio.LevelMeter, stop chan struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			fmt.Print("\r\033[K" + renderLevelBar(meter.Snapshot()))
		}
	}
}

var levelGlyphs = []rune("▁▂▃▄▅▆▇█")

// renderLevelBar draws one line of mic activity: a glyph per frequency
// band plus the overall level as a percentage.
func renderLevelBar(l audio.Levels) string {
	var b strings.Builder
	b.WriteString(dimStyle.Render("mic "))
	for _, band := range l.Bands {
		idx := int(band * float64(len(levelGlyphs)))
		if idx >= len(levelGlyphs) {
			idx = len(levelGlyphs) - 1
		}
		if idx < 0 {
			idx = 0
		}
		b.WriteRune(levelGlyphs[idx])
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf(" %3.0f%%", l.RMS*100)))
	return b.String()
}

func printSummary(mgr *session.Manager) {
	entries := mgr.Transcript()
	if len(entries) == 0 {
		fmt.Println(dimStyle.Render("No conversation recorded."))
		return
	}
	var yours, tutors int
	for _, e := range entries {
		if e.Role == "user" {
			yours++
		} else {
			tutors++
		}
	}
	fmt.Println(titleStyle.Render("Session summary"))
	fmt.Println(dimStyle.Render(fmt.Sprintf("%d turns (%d yours, %d tutor)", len(entries), yours, tutors)))
	for _, e := range entries {
		label := assistantStyle.Render("Tutor:")
		if e.Role == "user" {
			label = userStyle.Render("You:")
		}
		fmt.Println(label + " " + e.Text)
	}
}
