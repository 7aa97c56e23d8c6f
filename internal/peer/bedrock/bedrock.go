// Package bedrock connects to Bedrock Edition worlds through gophertunnel.
//
// The adapter logs in with an offline identity (no Xbox Live token source), so
// it only works against servers that accept unauthenticated clients.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/sandertv/gophertunnel/minecraft"
	"github.com/sandertv/gophertunnel/minecraft/protocol"
	"github.com/sandertv/gophertunnel/minecraft/protocol/login"
	"github.com/sandertv/gophertunnel/minecraft/protocol/packet"

	"github.com/life-stream-dev/afk-bridge/internal/logger"
	"github.com/life-stream-dev/afk-bridge/internal/peer"
)

const (
	defaultDialTimeout  = 30 * time.Second
	defaultSpawnTimeout = time.Minute

	// blocks per 50ms tick at walking speed
	walkStep     = 4.317 * 0.05
	moveTickRate = 50 * time.Millisecond
)

var errNoTarget = errors.New("no entity in range")

// Dialer opens gophertunnel connections.
type Dialer struct {
	DialTimeout  time.Duration
	SpawnTimeout time.Duration
}

var _ peer.Dialer = Dialer{}

// Open implements peer.Dialer. The dial and spawn sequence runs in the background.
func (d Dialer) Open(_ context.Context, target peer.Target, events peer.Events) (peer.Handle, error) {
	if target.Host == "" || target.Port <= 0 || target.Port > 65535 {
		return nil, fmt.Errorf("invalid target %s", target)
	}
	if d.DialTimeout <= 0 {
		d.DialTimeout = defaultDialTimeout
	}
	if d.SpawnTimeout <= 0 {
		d.SpawnTimeout = defaultSpawnTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		target:   target,
		events:   events,
		cancel:   cancel,
		names:    make(map[uuid.UUID]string),
		entities: make(map[uint64]mgl32.Vec3),
		uniques:  make(map[int64]uint64),
	}
	go c.run(ctx, d)
	return c, nil
}

// Conn is one Bedrock client connection.
type Conn struct {
	target peer.Target
	events peer.Events
	cancel context.CancelFunc

	mu           sync.Mutex
	conn         *minecraft.Conn
	spawned      bool
	closing      bool
	remoteClosed bool
	finished     bool

	runtimeID uint64
	position  mgl32.Vec3
	yaw       float32
	names     map[uuid.UUID]string
	entities  map[uint64]mgl32.Vec3
	uniques   map[int64]uint64
}

var _ peer.Handle = (*Conn)(nil)

func (c *Conn) run(ctx context.Context, d Dialer) {
	dialCtx, cancelDial := context.WithTimeout(ctx, d.DialTimeout)
	conn, err := minecraft.Dialer{
		IdentityData: login.IdentityData{DisplayName: c.target.Identity},
	}.DialContext(dialCtx, "raknet", c.target.Address())
	cancelDial()
	if err != nil {
		c.finish(fmt.Errorf("dial %s: %w", c.target.Address(), err))
		return
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		_ = conn.Close()
		c.finish(nil)
		return
	}
	c.conn = conn
	c.mu.Unlock()

	spawnCtx, cancelSpawn := context.WithTimeout(ctx, d.SpawnTimeout)
	err = conn.DoSpawnContext(spawnCtx)
	cancelSpawn()
	if err != nil {
		_ = conn.Close()
		c.finish(fmt.Errorf("spawn in %s: %w", c.target.Address(), err))
		return
	}

	data := conn.GameData()
	c.mu.Lock()
	c.spawned = true
	c.runtimeID = data.EntityRuntimeID
	c.position = data.PlayerPosition
	c.yaw = data.Yaw
	c.mu.Unlock()

	logger.DebugF("[%s] Spawned with runtime id %d", c.target.Address(), data.EntityRuntimeID)
	c.events.Ready()

	for {
		pk, err := conn.ReadPacket()
		if err != nil {
			c.finish(err)
			return
		}
		c.handlePacket(pk)
	}
}

// finish reports the end of the connection exactly once.
func (c *Conn) finish(err error) {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return
	}
	c.finished = true
	graceful := c.closing || c.remoteClosed || err == nil || errors.Is(err, net.ErrClosed)
	c.mu.Unlock()
	c.cancel()

	if graceful {
		c.events.Closed()
		return
	}
	c.events.Faulted(err)
}

func (c *Conn) handlePacket(pk packet.Packet) {
	switch pk := pk.(type) {
	case *packet.Text:
		if pk.TextType == packet.TextTypeChat && pk.SourceName != c.target.Identity {
			c.events.Chat(pk.SourceName, pk.Message)
		}
	case *packet.Disconnect:
		c.mu.Lock()
		c.remoteClosed = true
		c.mu.Unlock()
	default:
		c.mu.Lock()
		c.track(pk)
		c.mu.Unlock()
	}
}

// track keeps the player list and entity positions current. Caller holds c.mu.
func (c *Conn) track(pk packet.Packet) {
	switch pk := pk.(type) {
	case *packet.PlayerList:
		for _, entry := range pk.Entries {
			if pk.ActionType == packet.PlayerListActionAdd {
				c.names[entry.UUID] = entry.Username
			} else {
				delete(c.names, entry.UUID)
			}
		}
	case *packet.AddPlayer:
		c.entities[pk.EntityRuntimeID] = pk.Position
		c.uniques[pk.AbilityData.EntityUniqueID] = pk.EntityRuntimeID
	case *packet.AddActor:
		c.entities[pk.EntityRuntimeID] = pk.Position
		c.uniques[pk.EntityUniqueID] = pk.EntityRuntimeID
	case *packet.RemoveActor:
		if rid, ok := c.uniques[pk.EntityUniqueID]; ok {
			delete(c.entities, rid)
			delete(c.uniques, pk.EntityUniqueID)
		}
	case *packet.MoveActorAbsolute:
		if _, ok := c.entities[pk.EntityRuntimeID]; ok {
			c.entities[pk.EntityRuntimeID] = pk.Position
		}
	case *packet.MovePlayer:
		if pk.EntityRuntimeID == c.runtimeID {
			c.position = pk.Position
			c.yaw = pk.Yaw
		} else if _, ok := c.entities[pk.EntityRuntimeID]; ok {
			c.entities[pk.EntityRuntimeID] = pk.Position
		}
	}
}

// SendChatLine implements peer.Handle.
func (c *Conn) SendChatLine(text string) error {
	conn, err := c.live()
	if err != nil {
		return err
	}
	return conn.WritePacket(&packet.Text{
		TextType:   packet.TextTypeChat,
		SourceName: c.target.Identity,
		Message:    text,
		XUID:       conn.IdentityData().XUID,
	})
}

// PerformAction implements peer.Handle.
func (c *Conn) PerformAction(action peer.Action) error {
	conn, err := c.live()
	if err != nil {
		return err
	}

	switch action.Kind {
	case peer.ActionJump:
		return conn.WritePacket(&packet.PlayerAction{
			EntityRuntimeID: c.selfID(),
			ActionType:      protocol.PlayerActionJump,
		})
	case peer.ActionLookRandom:
		c.mu.Lock()
		c.yaw = rand.Float32() * 360
		pk := c.movePacket()
		c.mu.Unlock()
		return conn.WritePacket(pk)
	case peer.ActionAttackNearest:
		return c.attackNearest(conn)
	case peer.ActionMoveForward:
		go c.walk(conn, action.Duration)
		return nil
	default:
		return &peer.ErrUnsupportedAction{Kind: action.Kind}
	}
}

func (c *Conn) attackNearest(conn *minecraft.Conn) error {
	c.mu.Lock()
	self, pos := c.runtimeID, c.position
	var (
		target uint64
		at     mgl32.Vec3
		best   float32 = -1
	)
	for rid, p := range c.entities {
		if rid == self {
			continue
		}
		if dist := p.Sub(pos).Len(); best < 0 || dist < best {
			target, at, best = rid, p, dist
		}
	}
	c.mu.Unlock()

	if best < 0 {
		return errNoTarget
	}
	if err := conn.WritePacket(&packet.Animate{ActionType: packet.AnimateActionSwingArm, EntityRuntimeID: self}); err != nil {
		return err
	}
	return conn.WritePacket(&packet.InventoryTransaction{
		TransactionData: &protocol.UseItemOnEntityTransactionData{
			TargetEntityRuntimeID: target,
			ActionType:            protocol.UseItemOnEntityActionAttack,
			Position:              pos,
			ClickedPosition:       at,
		},
	})
}

// walk steps forward along the current yaw until d has elapsed or the connection ends.
func (c *Conn) walk(conn *minecraft.Conn, d time.Duration) {
	ticker := time.NewTicker(moveTickRate)
	defer ticker.Stop()
	deadline := time.Now().Add(d)

	for now := range ticker.C {
		if now.After(deadline) {
			return
		}
		c.mu.Lock()
		if c.finished || c.closing {
			c.mu.Unlock()
			return
		}
		rad := mgl32.DegToRad(c.yaw)
		step := mgl32.Vec3{-sin(rad), 0, cos(rad)}.Mul(walkStep)
		c.position = c.position.Add(step)
		pk := c.movePacket()
		c.mu.Unlock()

		if err := conn.WritePacket(pk); err != nil {
			logger.DebugF("[%s] Stop walking: %v", c.target.Address(), err)
			return
		}
	}
}

// movePacket builds a MovePlayer for the current position. Caller holds c.mu.
func (c *Conn) movePacket() *packet.MovePlayer {
	return &packet.MovePlayer{
		EntityRuntimeID: c.runtimeID,
		Position:        c.position,
		Yaw:             c.yaw,
		HeadYaw:         c.yaw,
		Mode:            packet.MoveModeNormal,
		OnGround:        true,
	}
}

// PeerNames implements peer.Handle.
func (c *Conn) PeerNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.names))
	for _, name := range c.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close implements peer.Handle. The Closed event follows from the read loop.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closing || c.finished {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.cancel()
		return nil
	}
	return conn.Close()
}

func (c *Conn) live() (*minecraft.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing || c.finished {
		return nil, peer.ErrClosed
	}
	if !c.spawned || c.conn == nil {
		return nil, peer.ErrNotReady
	}
	return c.conn, nil
}

func (c *Conn) selfID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runtimeID
}

func sin(rad float32) float32 { return float32(math.Sin(float64(rad))) }
func cos(rad float32) float32 { return float32(math.Cos(float64(rad))) }
