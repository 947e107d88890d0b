package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/nestward/nestward"
	"github.com/nestward/nestward/cache"
	internalcache "github.com/nestward/nestward/internal/cache"
	"github.com/nestward/nestward/journal"
	"github.com/nestward/nestward/mushroom"
	"github.com/nestward/nestward/resource"
	"github.com/nestward/nestward/route"
	"github.com/nestward/nestward/testutil"
	"github.com/nestward/nestward/vision"
)

// Scenario describes one simulated homing run. Fields mirror the option
// structs of the packages they configure; absent fields keep the
// package defaults.
type Scenario struct {
	// Name labels the agent and the archived run. Defaults to the file
	// name without extension.
	Name string `yaml:"name"`

	// Seed drives every derived seed that is not set explicitly. The
	// --seed flag and NESTWARD_SEED override it.
	Seed int64 `yaml:"seed"`

	// Store overrides the archive store for this scenario. The --store
	// flag and NESTWARD_STORE override it.
	Store string `yaml:"store"`

	World     WorldConfig     `yaml:"world"`
	Memory    MemoryConfig    `yaml:"memory"`
	Agent     AgentConfig     `yaml:"agent"`
	Condition ConditionConfig `yaml:"condition"`
	Routes    []RouteConfig   `yaml:"routes"`
	Journal   JournalConfig   `yaml:"journal"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

// WorldConfig mirrors vision.Options. Landmarks, autocontrast and
// invert are pointers so an explicit zero or false survives decoding.
type WorldConfig struct {
	Channels     int       `yaml:"channels"`
	Samples      int       `yaml:"samples"`
	Latitude     float64   `yaml:"latitude"`
	Longitude    float64   `yaml:"longitude"`
	Time         time.Time `yaml:"time"`
	Landmarks    *int      `yaml:"landmarks"`
	FieldRadius  float64   `yaml:"field_radius"`
	Seed         int64     `yaml:"seed"`
	Autocontrast *bool     `yaml:"autocontrast"`
	Invert       *bool     `yaml:"invert"`

	// CacheMB caches rendered snapshots in a cache of this many
	// megabytes. Zero disables the cache.
	CacheMB int64 `yaml:"cache_mb"`
	// Cache selects the cache backing: memory (default), sharded or
	// disk.
	Cache string `yaml:"cache"`
	// CacheDir is the directory of the disk cache.
	CacheDir string `yaml:"cache_dir"`
}

// MemoryConfig mirrors mushroom.Options. Channels and Samples follow
// the world unless set explicitly.
type MemoryConfig struct {
	Channels      int     `yaml:"channels"`
	Samples       int     `yaml:"samples"`
	CodeUnits     int     `yaml:"code_units"`
	FanIn         int     `yaml:"fan_in"`
	Sparsity      float64 `yaml:"sparsity"`
	LearningRate  float32 `yaml:"learning_rate"`
	InitialWeight float32 `yaml:"initial_weight"`
	Seed          int64   `yaml:"seed"`
}

// AgentConfig mirrors the walk options of nestward.Options. Angles are
// in degrees.
type AgentConfig struct {
	FanSamples      int      `yaml:"fan_samples"`
	FanHalfWidthDeg float64  `yaml:"fan_half_width_deg"`
	TieBreak        *float64 `yaml:"tie_break"`
	NestTolerance   float64  `yaml:"nest_tolerance"`
	SafetyCap       float64  `yaml:"safety_cap"`
	StepLimit       int      `yaml:"step_limit"`
}

// ConditionConfig selects the route conditioning policy.
type ConditionConfig struct {
	Type      string  `yaml:"type"` // noop (default) or hybrid
	TauX      float64 `yaml:"tau_x"`
	TauPhiDeg float64 `yaml:"tau_phi_deg"`
}

// RouteConfig names one training route: either a JSON file produced by
// "nestward routes gen" or an inline synthetic route.
type RouteConfig struct {
	File      string          `yaml:"file"`
	Synthetic *SyntheticRoute `yaml:"synthetic"`
}

// SyntheticRoute generates a jittered feeder-to-nest path.
type SyntheticRoute struct {
	Samples int     `yaml:"samples"`
	Feeder  Point   `yaml:"feeder"`
	Nest    Point   `yaml:"nest"`
	Jitter  float64 `yaml:"jitter"`
	Seed    int64   `yaml:"seed"`
}

// Point is a ground-plane position.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// JournalConfig enables crash-safe step tracing.
type JournalConfig struct {
	// Path is the journal file. Empty disables journalling.
	Path string `yaml:"path"`
	// Sync selects the durability mode: always (default), interval or
	// never.
	Sync string `yaml:"sync"`
}

// ArchiveConfig controls how the finished run is persisted.
type ArchiveConfig struct {
	// Compression names the payload compression: none, lz4 or zstd
	// (default).
	Compression string `yaml:"compression"`
	// Memory includes the trained memory snapshot in the run.
	Memory bool `yaml:"memory"`
	// Uploads bounds concurrent payload uploads.
	Uploads int64 `yaml:"uploads"`
	// IOLimitBytes caps archive upload throughput in bytes per second.
	IOLimitBytes int64 `yaml:"io_limit_bytes"`
	// Disabled skips archiving entirely.
	Disabled bool `yaml:"disabled"`
}

// LoadScenario reads and validates a scenario file. Unknown YAML keys
// are rejected so typos surface instead of silently keeping defaults.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var scn Scenario
	if err := dec.Decode(&scn); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}

	if scn.Name == "" {
		scn.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if len(scn.Routes) == 0 {
		return nil, fmt.Errorf("scenario %s: no routes", path)
	}
	return &scn, nil
}

// builtScenario is a scenario resolved into live components.
type builtScenario struct {
	world   *vision.Panorama
	agent   *nestward.Agent
	rc      *resource.Controller
	cache   cache.BlockCache
	journal *journal.Journal
	metrics *nestward.BasicMetricsCollector
}

// Close releases the journal and the snapshot cache.
func (b *builtScenario) Close() error {
	var errs []error
	if b.journal != nil {
		errs = append(errs, b.journal.Close())
	}
	if b.cache != nil {
		errs = append(errs, b.cache.Close())
	}
	return errors.Join(errs...)
}

// build constructs the world, the agent and the bound routes.
func (s *Scenario) build(seed int64, log *nestward.Logger) (*builtScenario, error) {
	b := &builtScenario{
		metrics: &nestward.BasicMetricsCollector{},
		rc: resource.NewController(resource.Config{
			MemoryLimitBytes:     s.World.CacheMB << 20,
			MaxConcurrentUploads: s.Archive.Uploads,
			IOLimitBytesPerSec:   s.Archive.IOLimitBytes,
		}),
	}
	if s.World.CacheMB > 0 {
		bc, err := s.World.buildCache(b.rc)
		if err != nil {
			return nil, err
		}
		b.cache = bc
	}

	world, err := vision.New(s.World.optFns(seed, b.cache)...)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("world: %w", err)
	}
	b.world = world

	cond, err := s.Condition.build()
	if err != nil {
		b.Close()
		return nil, err
	}

	j, err := s.Journal.open()
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("journal: %w", err)
	}
	b.journal = j

	agent, err := nestward.NewAgent(func(o *nestward.Options) {
		o.Name = s.Name
		o.MemoryOptions = []func(*mushroom.Options){s.Memory.optFn(s.World, seed)}
		o.Condition = cond
		o.Logger = log
		o.Metrics = b.metrics
		o.Journal = j
		s.Agent.apply(o)
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("agent: %w", err)
	}
	b.agent = agent

	if err := agent.SetWorld(world); err != nil {
		b.Close()
		return nil, err
	}

	routes, err := s.buildRoutes(agent.ID(), seed)
	if err != nil {
		b.Close()
		return nil, err
	}
	for _, r := range routes {
		if err := agent.BindRoute(r); err != nil {
			b.Close()
			return nil, fmt.Errorf("bind route %d: %w", r.Seq, err)
		}
	}

	return b, nil
}

// buildCache constructs the snapshot cache named by the scenario. The
// sharded cache suits concurrent batch runs; the disk cache survives
// the process.
func (c WorldConfig) buildCache(rc *resource.Controller) (cache.BlockCache, error) {
	capacity := c.CacheMB << 20
	switch strings.ToLower(c.Cache) {
	case "", "memory":
		return cache.NewLRUBlockCache(capacity, rc), nil
	case "sharded":
		return internalcache.NewShardedLRUBlockCache(capacity, rc), nil
	case "disk":
		if c.CacheDir == "" {
			return nil, errors.New("disk cache: cache_dir required")
		}
		return internalcache.NewDiskBlockCache(internalcache.DiskCacheConfig{
			RootDir:      c.CacheDir,
			MaxSizeBytes: capacity,
		})
	default:
		return nil, fmt.Errorf("cache %q: want memory, sharded or disk", c.Cache)
	}
}

func (c WorldConfig) optFns(seed int64, bc cache.BlockCache) []func(*vision.Options) {
	fns := []func(*vision.Options){func(o *vision.Options) {
		if c.Channels != 0 {
			o.Channels = c.Channels
		}
		if c.Samples != 0 {
			o.Samples = c.Samples
		}
		if c.Latitude != 0 {
			o.Latitude = c.Latitude
		}
		if c.Longitude != 0 {
			o.Longitude = c.Longitude
		}
		if !c.Time.IsZero() {
			o.Time = c.Time
		}
		if c.Landmarks != nil {
			o.Landmarks = *c.Landmarks
		}
		if c.FieldRadius != 0 {
			o.FieldRadius = c.FieldRadius
		}
		o.Seed = seed
		if c.Seed != 0 {
			o.Seed = c.Seed
		}
		if c.Autocontrast != nil {
			o.Autocontrast = *c.Autocontrast
		}
		if c.Invert != nil {
			o.Invert = *c.Invert
		}
	}}
	if bc != nil {
		fns = append(fns, vision.WithSnapshotCache(bc))
	}
	return fns
}

func (c MemoryConfig) optFn(world WorldConfig, seed int64) func(*mushroom.Options) {
	return func(o *mushroom.Options) {
		// The memory dimension follows the world so SetWorld accepts
		// the pairing without the scenario repeating itself.
		if world.Channels != 0 {
			o.Channels = world.Channels
		}
		if world.Samples != 0 {
			o.Samples = world.Samples
		}
		if c.Channels != 0 {
			o.Channels = c.Channels
		}
		if c.Samples != 0 {
			o.Samples = c.Samples
		}
		if c.CodeUnits != 0 {
			o.CodeUnits = c.CodeUnits
		}
		if c.FanIn != 0 {
			o.FanIn = c.FanIn
		}
		if c.Sparsity != 0 {
			o.Sparsity = c.Sparsity
		}
		if c.LearningRate != 0 {
			o.LearningRate = c.LearningRate
		}
		if c.InitialWeight != 0 {
			o.InitialWeight = c.InitialWeight
		}
		o.Seed = seed
		if c.Seed != 0 {
			o.Seed = c.Seed
		}
	}
}

func (c AgentConfig) apply(o *nestward.Options) {
	if c.FanSamples != 0 {
		o.FanSamples = c.FanSamples
	}
	if c.FanHalfWidthDeg != 0 {
		o.FanHalfWidth = c.FanHalfWidthDeg * math.Pi / 180
	}
	if c.TieBreak != nil {
		o.TieBreakMagnitude = *c.TieBreak
	}
	if c.NestTolerance != 0 {
		o.NestTolerance = c.NestTolerance
	}
	if c.SafetyCap != 0 {
		o.SafetyCap = c.SafetyCap
	}
	if c.StepLimit != 0 {
		o.StepLimit = c.StepLimit
	}
}

func (c ConditionConfig) build() (route.Condition, error) {
	switch strings.ToLower(c.Type) {
	case "", "noop":
		return route.Noop{}, nil
	case "hybrid":
		return route.Hybrid{TauX: c.TauX, TauPhi: c.TauPhiDeg * math.Pi / 180}, nil
	default:
		return nil, fmt.Errorf("condition %q: want noop or hybrid", c.Type)
	}
}

func (c JournalConfig) open() (*journal.Journal, error) {
	if c.Path == "" {
		return nil, nil
	}

	pol := journal.SyncAlways
	switch strings.ToLower(c.Sync) {
	case "", "always":
	case "interval":
		pol = journal.SyncInterval
	case "never":
		pol = journal.SyncNever
	default:
		return nil, fmt.Errorf("journal sync %q: want always, interval or never", c.Sync)
	}

	return journal.Open(c.Path, func(o *journal.Options) {
		o.SyncPolicy = pol
	})
}

// buildRoutes resolves the route list into bindable routes. Synthetic
// routes without an explicit seed derive theirs from the scenario seed
// and their position, so two inline routes never coincide.
func (s *Scenario) buildRoutes(agentID uuid.UUID, base int64) ([]*route.Route, error) {
	routes := make([]*route.Route, 0, len(s.Routes))
	for i, rc := range s.Routes {
		switch {
		case rc.File != "" && rc.Synthetic != nil:
			return nil, fmt.Errorf("route %d: file and synthetic are exclusive", i)
		case rc.File != "":
			r, err := loadRouteFile(rc.File)
			if err != nil {
				return nil, fmt.Errorf("route %d: %w", i, err)
			}
			r.Seq = i
			routes = append(routes, r)
		case rc.Synthetic != nil:
			r, err := rc.Synthetic.generate(agentID, i, base)
			if err != nil {
				return nil, fmt.Errorf("route %d: %w", i, err)
			}
			routes = append(routes, r)
		default:
			return nil, fmt.Errorf("route %d: file or synthetic required", i)
		}
	}
	return routes, nil
}

func loadRouteFile(path string) (*route.Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var r route.Route
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if r.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", path, route.ErrEmptyRoute)
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return &r, nil
}

func (c *SyntheticRoute) generate(agentID uuid.UUID, seq int, base int64) (*route.Route, error) {
	if c.Feeder == c.Nest {
		return nil, errors.New("synthetic route: feeder and nest coincide")
	}

	n := c.Samples
	if n == 0 {
		n = 40
	}
	s := c.Seed
	if s == 0 {
		s = base + int64(seq)
	}

	rng := testutil.NewRNG(s)
	poses := rng.RoutePoses(n,
		route.Pose{X: c.Feeder.X, Y: c.Feeder.Y},
		route.Pose{X: c.Nest.X, Y: c.Nest.Y},
		c.Jitter,
	)
	return route.New(agentID, seq, poses)
}
