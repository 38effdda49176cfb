package config

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Profile is a launch description for a child process loaded from TOML.
//
//	path = "./bin/worker"
//	args = ["--mode", "ipc"]
//	dir = "/srv/worker"
//	keepalive = "20s"
//	auto_pong = true
//	max_frame_size = 1048576
//	read_buffer_size = 65536
//
//	[env]
//	WORKER_LOG = "debug"
type Profile struct {
	Path           string
	Args           []string
	Env            []string
	Dir            string
	MaxFrameSize   int
	ReadBufferSize int
	KeepAlive      time.Duration

	// AutoPong is nil when the profile leaves the default in place.
	AutoPong *bool
}

type fileProfile struct {
	Path           string            `toml:"path"`
	Args           []string          `toml:"args"`
	Env            map[string]string `toml:"env"`
	Dir            string            `toml:"dir"`
	MaxFrameSize   int               `toml:"max_frame_size"`
	ReadBufferSize int               `toml:"read_buffer_size"`
	KeepAlive      string            `toml:"keepalive"`
	AutoPong       bool              `toml:"auto_pong"`
}

// LoadProfile reads a TOML profile. Keys absent from the file keep their
// zero values.
func LoadProfile(path string) (*Profile, error) {
	var raw fileProfile

	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("load profile: unknown keys %v", undecoded)
	}

	p := &Profile{}

	if meta.IsDefined("path") {
		p.Path = strings.TrimSpace(raw.Path)
	}

	if meta.IsDefined("args") {
		p.Args = raw.Args
	}

	if meta.IsDefined("env") {
		for _, k := range slices.Sorted(maps.Keys(raw.Env)) {
			p.Env = append(p.Env, k+"="+raw.Env[k])
		}
	}

	if meta.IsDefined("dir") {
		p.Dir = strings.TrimSpace(raw.Dir)
	}

	if meta.IsDefined("max_frame_size") {
		if raw.MaxFrameSize < 0 {
			return nil, fmt.Errorf("load profile: max_frame_size must not be negative")
		}

		p.MaxFrameSize = raw.MaxFrameSize
	}

	if meta.IsDefined("read_buffer_size") {
		if raw.ReadBufferSize < 0 {
			return nil, fmt.Errorf("load profile: read_buffer_size must not be negative")
		}

		p.ReadBufferSize = raw.ReadBufferSize
	}

	if meta.IsDefined("keepalive") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.KeepAlive))
		if err != nil {
			return nil, fmt.Errorf("parse keepalive: %w", err)
		}

		p.KeepAlive = d
	}

	if meta.IsDefined("auto_pong") {
		p.AutoPong = &raw.AutoPong
	}

	return p, nil
}

// Apply copies the profile's settings, other than Path and Args, onto o.
func (p *Profile) Apply(o *Options) {
	o.Env = append(o.Env, p.Env...)

	if p.Dir != "" {
		o.Dir = p.Dir
	}

	if p.MaxFrameSize > 0 {
		o.MaxFrameSize = p.MaxFrameSize
	}

	if p.ReadBufferSize > 0 {
		o.ReadBufferSize = p.ReadBufferSize
	}

	if p.KeepAlive > 0 {
		o.KeepAliveInterval = p.KeepAlive
	}

	if p.AutoPong != nil {
		o.DisableAutoPong = !*p.AutoPong
	}
}
