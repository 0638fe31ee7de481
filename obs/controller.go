package obs

import (
	"time"

	"github.com/andreykaipov/goobs"
	"github.com/andreykaipov/goobs/api/events/subscriptions"
	obsconfig "github.com/andreykaipov/goobs/api/requests/config"
	"github.com/gorilla/websocket"
)

// recordStatus is the subset of GetRecordStatus the recorder reads.
type recordStatus struct {
	Active   bool
	Paused   bool
	Timecode string
	Bytes    int64
}

// controller is the obs-websocket surface used by Recorder.
type controller interface {
	Version() (obsVersion, wsVersion string, err error)
	SetRecordDirectory(dir string) error
	StartRecord() error
	StopRecord() (outputPath string, err error)
	RecordStatus() (recordStatus, error)
	Scenes() (current string, names []string, err error)
	Close() error
}

// dialFunc opens a controller; replaced in tests.
type dialFunc func(addr, password string, timeout time.Duration) (controller, error)

func dialGoobs(addr, password string, timeout time.Duration) (controller, error) {
	opts := []goobs.Option{
		goobs.WithDialer(&websocket.Dialer{HandshakeTimeout: timeout}),
		// Requests only; the recorder polls state instead of listening for events.
		goobs.WithEventSubscriptions(subscriptions.None),
	}
	if password != "" {
		opts = append(opts, goobs.WithPassword(password))
	}

	client, err := goobs.New(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &goobsController{client: client}, nil
}

type goobsController struct {
	client *goobs.Client
}

func (g *goobsController) Version() (string, string, error) {
	v, err := g.client.General.GetVersion()
	if err != nil {
		return "", "", err
	}
	return v.ObsVersion, v.ObsWebSocketVersion, nil
}

func (g *goobsController) SetRecordDirectory(dir string) error {
	_, err := g.client.Config.SetRecordDirectory(obsconfig.NewSetRecordDirectoryParams().WithRecordDirectory(dir))
	return err
}

func (g *goobsController) StartRecord() error {
	_, err := g.client.Record.StartRecord()
	return err
}

func (g *goobsController) StopRecord() (string, error) {
	resp, err := g.client.Record.StopRecord()
	if err != nil {
		return "", err
	}
	return resp.OutputPath, nil
}

func (g *goobsController) RecordStatus() (recordStatus, error) {
	s, err := g.client.Record.GetRecordStatus()
	if err != nil {
		return recordStatus{}, err
	}
	return recordStatus{
		Active:   s.OutputActive,
		Paused:   s.OutputPaused,
		Timecode: s.OutputTimecode,
		Bytes:    int64(s.OutputBytes),
	}, nil
}

func (g *goobsController) Scenes() (string, []string, error) {
	resp, err := g.client.Scenes.GetSceneList()
	if err != nil {
		return "", nil, err
	}
	names := make([]string, 0, len(resp.Scenes))
	for _, s := range resp.Scenes {
		names = append(names, s.SceneName)
	}
	return resp.CurrentProgramSceneName, names, nil
}

func (g *goobsController) Close() error {
	return g.client.Disconnect()
}
