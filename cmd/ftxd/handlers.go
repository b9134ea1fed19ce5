package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gopkg.in/yaml.v2"

	"github.com/dougsko/ftxcat/pkg/cat"
	"github.com/dougsko/ftxcat/pkg/hardware"
	"github.com/dougsko/ftxcat/pkg/logging"
	"github.com/dougsko/ftxcat/pkg/storage"
)

// httpStatus maps a radio error to an HTTP status code
func httpStatus(err error) int {
	switch cat.KindOf(err) {
	case cat.ErrValueOutOfRange, cat.ErrUnsupportedValue, cat.ErrUnsupportedCommand:
		return http.StatusBadRequest
	case cat.ErrSetNotConfirmed:
		return http.StatusConflict
	case cat.ErrRejected, cat.ErrMalformedField, cat.ErrVerbMismatch:
		return http.StatusBadGateway
	case cat.ErrTimeout:
		return http.StatusGatewayTimeout
	case cat.ErrClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes err with its kind
func abortWithError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	if kind := cat.KindOf(err); kind != nil {
		body["kind"] = kind.Error()
	}
	c.JSON(httpStatus(err), body)
}

// parseSide accepts MAIN/SUB or A/B, case-insensitive, empty meaning MAIN
func parseSide(s string) (cat.Side, error) {
	switch strings.ToUpper(s) {
	case "", "MAIN", "A":
		return cat.SideMain, nil
	case "SUB", "B":
		return cat.SideSub, nil
	}
	return "", fmt.Errorf("invalid side %q", s)
}

func queryInt(c *gin.Context, name string, def int) int {
	n, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(def)))
	if err != nil || n < 0 {
		return def
	}
	return n
}

// handleGetStatus returns daemon status
func (d *FTXDaemon) handleGetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, d.coreEngine.Status())
}

// handleGetState reads the radio state. With cached=true the last polled
// state is returned instead of querying the radio.
func (d *FTXDaemon) handleGetState(c *gin.Context) {
	if c.Query("cached") == "true" {
		snap := d.coreEngine.LastState()
		if snap == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no state read yet"})
			return
		}
		c.JSON(http.StatusOK, snap)
		return
	}

	snap, err := d.coreEngine.ReadState()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (d *FTXDaemon) handleGetFrequency(c *gin.Context) {
	side, err := parseSide(c.Query("side"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d.respondFrequency(c, side)
}

func (d *FTXDaemon) handleSetFrequency(c *gin.Context) {
	var req struct {
		Side      string `json:"side"`
		Frequency int    `json:"frequency" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := d.coreEngine.SetFrequency(side, req.Frequency); err != nil {
		abortWithError(c, err)
		return
	}
	d.respondFrequency(c, side)
}

func (d *FTXDaemon) respondFrequency(c *gin.Context, side cat.Side) {
	hz, err := d.coreEngine.GetFrequency(side)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"side": side, "frequency": hz})
}

func (d *FTXDaemon) handleGetPower(c *gin.Context) {
	d.respondPower(c)
}

func (d *FTXDaemon) handleSetPower(c *gin.Context) {
	var req struct {
		Watts int    `json:"watts" binding:"required"`
		Unit  string `json:"unit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	unit := cat.PowerPrimary
	switch strings.ToUpper(req.Unit) {
	case "", "FIELD":
	case "AMP", "SPA-1":
		unit = cat.PowerAmplifier
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid power unit %q", req.Unit)})
		return
	}

	if err := d.coreEngine.SetPower(req.Watts, unit); err != nil {
		abortWithError(c, err)
		return
	}
	d.respondPower(c)
}

func (d *FTXDaemon) respondPower(c *gin.Context) {
	unit, watts, err := d.coreEngine.GetPower()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unit": unit, "watts": watts})
}

func (d *FTXDaemon) handleGetMode(c *gin.Context) {
	side, err := parseSide(c.Query("side"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d.respondMode(c, side)
}

func (d *FTXDaemon) handleSetMode(c *gin.Context) {
	var req struct {
		Side string `json:"side"`
		Mode string `json:"mode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := d.coreEngine.SetMode(side, cat.Mode(strings.ToUpper(req.Mode))); err != nil {
		abortWithError(c, err)
		return
	}
	d.respondMode(c, side)
}

func (d *FTXDaemon) respondMode(c *gin.Context, side cat.Side) {
	mode, err := d.coreEngine.GetMode(side)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"side": side, "mode": mode})
}

func (d *FTXDaemon) handleGetPTT(c *gin.Context) {
	d.respondPTT(c)
}

func (d *FTXDaemon) handleSetPTT(c *gin.Context) {
	var req struct {
		On *bool `json:"on" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := d.coreEngine.SetPTT(*req.On); err != nil {
		abortWithError(c, err)
		return
	}
	d.respondPTT(c)
}

func (d *FTXDaemon) respondPTT(c *gin.Context) {
	state, err := d.coreEngine.GetPTT()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ptt": state, "transmit": state != cat.TXOff})
}

func (d *FTXDaemon) handleGetClarifier(c *gin.Context) {
	clar, err := d.coreEngine.GetClarifier()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, clar)
}

func (d *FTXDaemon) handleSetClarifier(c *gin.Context) {
	var req struct {
		Side   string `json:"side"`
		RX     bool   `json:"rx"`
		TX     bool   `json:"tx"`
		Offset int    `json:"offset"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := d.coreEngine.SetClarifier(side, req.RX, req.TX, req.Offset); err != nil {
		abortWithError(c, err)
		return
	}
	if side != cat.SideMain {
		c.JSON(http.StatusOK, gin.H{"side": side, "rx": req.RX, "tx": req.TX, "offset": req.Offset})
		return
	}
	d.handleGetClarifier(c)
}

// handleSetBand selects a band memory, or steps with "up" or "down"
func (d *FTXDaemon) handleSetBand(c *gin.Context) {
	var req struct {
		Side string `json:"side"`
		Band string `json:"band"`
		Step string `json:"step"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch {
	case req.Band != "" && req.Step == "":
		err = d.coreEngine.SelectBand(side, cat.Band(strings.ToUpper(req.Band)))
	case req.Band == "" && strings.EqualFold(req.Step, "up"):
		err = d.coreEngine.StepBand(side, true)
	case req.Band == "" && strings.EqualFold(req.Step, "down"):
		err = d.coreEngine.StepBand(side, false)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "give either band or step (up/down)"})
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	d.respondFrequency(c, side)
}

func (d *FTXDaemon) handleGetMeter(c *gin.Context) {
	meter := cat.Meter(strings.ToUpper(c.DefaultQuery("type", string(cat.MeterSMain))))
	primary, secondary, err := d.coreEngine.GetMeter(meter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meter": meter, "primary": primary, "secondary": secondary})
}

func (d *FTXDaemon) handleGetFirmware(c *gin.Context) {
	cpu := cat.CPU(strings.ToUpper(c.DefaultQuery("cpu", string(cat.CPUMain))))
	version, err := d.coreEngine.GetFirmwareVersion(cpu)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cpu": cpu, "version": version})
}

// handleGetHistory returns stored state snapshots, newest first
func (d *FTXDaemon) handleGetHistory(c *gin.Context) {
	limit := queryInt(c, "limit", 50)

	snapshots, err := d.coreEngine.History(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

// handleGetOperations returns the operation log, newest first
func (d *FTXDaemon) handleGetOperations(c *gin.Context) {
	query := storage.OperationQuery{
		Limit:      queryInt(c, "limit", 50),
		Name:       c.Query("name"),
		FailedOnly: c.Query("failed") == "true",
	}

	ops, err := d.coreEngine.Operations(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"operations": ops,
		"count":      len(ops),
	})
}

// handleGetStats returns state store statistics
func (d *FTXDaemon) handleGetStats(c *gin.Context) {
	if d.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "state store disabled"})
		return
	}

	stats, err := d.store.GetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// handleGetSerialDevices lists serial ports plus the built-in emulator
func (d *FTXDaemon) handleGetSerialDevices(c *gin.Context) {
	ports, err := hardware.ListSerialPorts()
	if err != nil {
		logging.Warnf("web", "failed to list serial ports: %v", err)
		ports = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"serial_devices": ports,
		"simulator":      hardware.SimPrefix,
	})
}

// handleGetConfig returns the current configuration
func (d *FTXDaemon) handleGetConfig(c *gin.Context) {
	// Round trip through YAML so field names match the config file
	yamlData, err := yaml.Marshal(d.config)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to marshal config: %v", err),
		})
		return
	}

	var yamlConfig interface{}
	if err := yaml.Unmarshal(yamlData, &yamlConfig); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to unmarshal config: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, convertYamlToJson(yamlConfig))
}

// convertYamlToJson converts YAML map[interface{}]interface{} to JSON-compatible map[string]interface{}
func convertYamlToJson(i interface{}) interface{} {
	switch x := i.(type) {
	case map[interface{}]interface{}:
		m2 := map[string]interface{}{}
		for k, v := range x {
			m2[fmt.Sprint(k)] = convertYamlToJson(v)
		}
		return m2
	case []interface{}:
		for i, v := range x {
			x[i] = convertYamlToJson(v)
		}
	}
	return i
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleStateWebSocket streams every state snapshot as JSON
func (d *FTXDaemon) handleStateWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warnf("web", "WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	id, states := d.coreEngine.Subscribe()
	defer d.coreEngine.Unsubscribe(id)

	logging.Debug("web", "State WebSocket client connected")

	// Detect the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if snap := d.coreEngine.LastState(); snap != nil {
		if err := conn.WriteJSON(snap); err != nil {
			return
		}
	}

	for {
		select {
		case snap, ok := <-states:
			if !ok {
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					logging.Debugf("web", "WebSocket write error: %v", err)
				}
				return
			}

		case <-closed:
			logging.Debug("web", "State WebSocket client disconnected")
			return

		case <-d.ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return
		}
	}
}
