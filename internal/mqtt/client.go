// Package mqtt bridges an optional broker onto the command queues. Inbound
// topics translate to the same commands the UDP port accepts; outbound state
// topics mirror the event bus so dashboards can follow the device.
package mqtt

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"prop-controller/internal/config"
	"prop-controller/internal/core"
)

// Patterns is the slice of the pattern engine the bridge needs.
type Patterns interface {
	Run(name string) error
	Stop()
}

type Client struct {
	client    mqtt.Client
	cfg       *config.Config
	lightingQ *core.Queue[core.LightingCommand]
	playbackQ *core.Queue[core.PlaybackCommand]
	patterns  Patterns
	bus       *core.EventBus
	prefix    string
	done      chan struct{}
}

// NewClient builds the bridge. Returns nil when the bridge is disabled in
// config; callers treat a nil client as a no-op.
func NewClient(cfg *config.Config, lightingQ *core.Queue[core.LightingCommand], playbackQ *core.Queue[core.PlaybackCommand], patterns Patterns, bus *core.EventBus) *Client {
	if !cfg.MQTT.Enabled {
		return nil
	}

	prefix := strings.TrimSuffix(cfg.MQTT.TopicPrefix, "/")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)
	opts.SetUsername(cfg.MQTT.Username)
	opts.SetPassword(cfg.MQTT.Password)

	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	// Keep retrying at startup so a broker that boots after us is not fatal.
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetOrderMatters(false)

	// LWT so the broker flips us offline if we vanish.
	opts.SetWill(prefix+"/availability", "offline", 1, true)

	c := &Client{
		cfg:       cfg,
		lightingQ: lightingQ,
		playbackQ: playbackQ,
		patterns:  patterns,
		bus:       bus,
		prefix:    prefix,
		done:      make(chan struct{}),
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("[MQTT] Connection lost: %v. Retrying in background...", err)
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, options *mqtt.ClientOptions) {
		log.Println("[MQTT] Attempting to reconnect...")
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect initiates the connection and starts mirroring bus events.
func (c *Client) Connect() error {
	if c == nil {
		return nil
	}
	log.Printf("[MQTT] Starting connection loop to %s...", c.cfg.MQTT.Broker)

	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		log.Printf("[MQTT] Initial connection error: %v", token.Error())
		return token.Error()
	}

	go c.mirror()
	return nil
}

// Disconnect publishes offline and closes the socket.
func (c *Client) Disconnect() {
	if c == nil {
		return
	}
	close(c.done)
	if c.client.IsConnected() {
		log.Println("[MQTT] Disconnecting...")

		token := c.client.Publish(c.prefix+"/availability", 0, true, "offline")
		if !token.WaitTimeout(2 * time.Second) {
			log.Println("[MQTT] Warning: timed out publishing offline status.")
		}

		c.client.Disconnect(250)
		log.Println("[MQTT] Disconnected.")
	}
}

// Publish sends to prefix/subtopic without blocking the caller.
func (c *Client) Publish(subtopic string, payload interface{}, retained bool) {
	if c == nil || !c.client.IsConnected() {
		return
	}

	topic := fmt.Sprintf("%s/%s", c.prefix, subtopic)
	token := c.client.Publish(topic, 0, retained, fmt.Sprintf("%v", payload))

	go func() {
		if token.WaitTimeout(5 * time.Second) {
			if token.Error() != nil {
				log.Printf("[MQTT] Publish error to %s: %v", topic, token.Error())
			}
		} else {
			log.Printf("[MQTT] Timeout publishing to %s.", topic)
		}
	}()
}

func (c *Client) onConnect(client mqtt.Client) {
	log.Println("[MQTT] Connected to broker.")

	topics := map[string]mqtt.MessageHandler{
		"color/set":      c.handleColor,
		"brightness/set": c.handleBrightness,
		"play/set":       c.handlePlay,
		"stop":           c.handleStop,
		"pattern/run":    c.handlePatternRun,
		"pattern/stop":   c.handlePatternStop,
	}

	for sub, handler := range topics {
		topic := fmt.Sprintf("%s/%s", c.prefix, sub)
		if token := client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
			log.Printf("[MQTT] Error subscribing to %s: %v", topic, token.Error())
		} else {
			log.Printf("[MQTT] Subscribed to %s.", topic)
		}
	}

	go c.Publish("availability", "online", true)
}

// mirror republishes bus events as retained state topics.
func (c *Client) mirror() {
	types := []core.EventType{
		core.LightingChangedEvent,
		core.PlaybackChangedEvent,
		core.PatternChangedEvent,
	}
	sub := c.bus.Subscribe(types...)
	defer c.bus.Unsubscribe(sub, types...)

	for {
		select {
		case <-c.done:
			return
		case event := <-sub:
			switch event.Type {
			case core.LightingChangedEvent:
				if s, ok := event.Payload.(core.LightingSummary); ok {
					c.Publish("color/state", fmt.Sprintf("%d,%d,%d", s.Color.R, s.Color.G, s.Color.B), true)
					c.Publish("brightness/state", s.Brightness, true)
				}
			case core.PlaybackChangedEvent:
				if s, ok := event.Payload.(core.PlaybackSummary); ok {
					if s.Playing {
						c.Publish("play/state", s.Name, true)
					} else {
						c.Publish("play/state", "", true)
					}
				}
			case core.PatternChangedEvent:
				if m, ok := event.Payload.(map[string]interface{}); ok {
					c.Publish("pattern/state", m["running"], true)
				}
			}
		}
	}
}

func (c *Client) sendLighting(cmd core.LightingCommand) {
	if !c.lightingQ.TrySend(cmd) {
		log.Printf("[MQTT] Lighting queue full, dropped %s.", cmd.Kind)
	}
}

func (c *Client) handleColor(client mqtt.Client, msg mqtt.Message) {
	payload := strings.TrimSpace(string(msg.Payload()))

	var r, g, b int
	switch {
	case strings.HasPrefix(payload, "#") || len(payload) == 6:
		cleanHex := strings.TrimPrefix(payload, "#")
		if _, err := fmt.Sscanf(cleanHex, "%02x%02x%02x", &r, &g, &b); err != nil {
			return
		}
	case strings.Contains(payload, ","):
		parts := strings.Split(payload, ",")
		if len(parts) != 3 {
			return
		}
		r, _ = strconv.Atoi(strings.TrimSpace(parts[0]))
		g, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
		b, _ = strconv.Atoi(strings.TrimSpace(parts[2]))
	default:
		return
	}
	if r < 0 || r > 255 || g < 0 || g > 255 || b < 0 || b > 255 {
		return
	}

	c.sendLighting(core.LightingCommand{
		Kind:  core.LightingSetColor,
		Color: core.Color{R: uint8(r), G: uint8(g), B: uint8(b)},
	})
}

func (c *Client) handleBrightness(client mqtt.Client, msg mqtt.Message) {
	val, err := strconv.Atoi(string(msg.Payload()))
	if err != nil || val < 0 || val > 100 {
		return
	}
	c.sendLighting(core.LightingCommand{Kind: core.LightingSetBrightness, Brightness: val})
}

func (c *Client) handlePlay(client mqtt.Client, msg mqtt.Message) {
	name := strings.TrimSpace(string(msg.Payload()))
	if name == "" {
		return
	}
	if !c.playbackQ.TrySend(core.PlaybackCommand{Kind: core.PlaybackPlay, Name: name, Loop: true}) {
		log.Println("[MQTT] Playback queue full, dropped play.")
	}
}

func (c *Client) handleStop(client mqtt.Client, msg mqtt.Message) {
	if !c.playbackQ.TrySend(core.PlaybackCommand{Kind: core.PlaybackStop}) {
		log.Println("[MQTT] Playback queue full, dropped stop.")
	}
}

func (c *Client) handlePatternRun(client mqtt.Client, msg mqtt.Message) {
	if c.patterns == nil {
		return
	}
	if err := c.patterns.Run(string(msg.Payload())); err != nil {
		log.Printf("[MQTT] Pattern run failed: %v", err)
	}
}

func (c *Client) handlePatternStop(client mqtt.Client, msg mqtt.Message) {
	if c.patterns != nil {
		c.patterns.Stop()
	}
}
