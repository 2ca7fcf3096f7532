package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/Relicjamin-jv/wolf/internal/core/domain"
	"github.com/Relicjamin-jv/wolf/internal/core/events"
	"github.com/Relicjamin-jv/wolf/internal/core/pairing"
	"github.com/Relicjamin-jv/wolf/pkg/crypto"
	apperrors "github.com/Relicjamin-jv/wolf/pkg/errors"
	"github.com/Relicjamin-jv/wolf/pkg/utils"
	"github.com/Relicjamin-jv/wolf/pkg/validation"

	"github.com/Relicjamin-jv/wolf/internal/core/state"

	"context"
	"crypto/rsa"
	"crypto/x509"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// How long a pairing attempt may wait for the user to enter the PIN.
const pinWaitTimeout = 2 * time.Minute

// The final pairing secret is the 16-byte client secret followed by its
// RSA signature.
const pairSecretPayloadSize = 16

// PairingMetrics is implemented by the prometheus collector. Nil is valid.
type PairingMetrics interface {
	RecordPairingSucceeded(d time.Duration)
	RecordPairingFailed()
	SetPendingPairRequests(n int)
	SetPairedClients(n int)
}

type handshakeState struct {
	hs         *pairing.Handshake
	clientName string
	clientIP   string
	started    time.Time
}

// PairHandler drives the four-phase certificate-trust exchange with a
// Moonlight client and exposes the admin endpoints that feed PINs into
// pending attempts.
type PairHandler struct {
	state   *state.Config
	pending *pairing.PendingList
	bus     *events.Bus

	hostCert *x509.Certificate
	hostKey  *rsa.PrivateKey

	metrics PairingMetrics
	logger  *zap.SugaredLogger

	mu         sync.Mutex
	handshakes map[string]*handshakeState
}

func NewPairHandler(
	stateCfg *state.Config,
	pending *pairing.PendingList,
	bus *events.Bus,
	hostCert *x509.Certificate,
	hostKey *rsa.PrivateKey,
	metrics PairingMetrics,
	logger *zap.SugaredLogger,
) *PairHandler {
	return &PairHandler{
		state:      stateCfg,
		pending:    pending,
		bus:        bus,
		hostCert:   hostCert,
		hostKey:    hostKey,
		metrics:    metrics,
		logger:     logger,
		handshakes: make(map[string]*handshakeState),
	}
}

// SetupRoutes registers the client-facing pairing endpoint (public) and
// returns nothing; admin routes are registered separately so they can
// sit behind auth.
func (h *PairHandler) SetupRoutes(router *gin.Engine) {
	router.POST("/pair", h.HandlePairPhase)
}

// SetupAdminRoutes registers the PIN-entry endpoints on an authed group.
func (h *PairHandler) SetupAdminRoutes(group *gin.RouterGroup) {
	group.GET("/pair/pending", h.ListPending)
	group.POST("/pair/client", h.ResolvePin)
}

type pairPhaseRequest struct {
	Phase      string `json:"phase" binding:"required"`
	PairSecret string `json:"pair_secret"`

	// phase == "getservercert"
	Salt       string `json:"salt"`
	ClientCert string `json:"client_cert"`
	ClientName string `json:"client_name"`

	// phase == "clientchallenge"
	ClientChallenge string `json:"client_challenge"`

	// phase == "serverchallengeresp"
	ServerChallengeResponse string `json:"server_challenge_response"`

	// phase == "clientpairingsecret"
	ClientPairingSecret string `json:"client_pairing_secret"`
}

// HandlePairPhase dispatches one pairing phase. Phases after the first
// are keyed by the pair secret handed out in the getservercert reply.
func (h *PairHandler) HandlePairPhase(c *gin.Context) {
	var req pairPhaseRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Phase {
	case "getservercert":
		h.phaseGetServerCert(c, req)
	case "clientchallenge":
		h.phaseClientChallenge(c, req)
	case "serverchallengeresp":
		h.phaseServerChallengeResp(c, req)
	case "clientpairingsecret":
		h.phaseClientPairingSecret(c, req)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown pairing phase: " + req.Phase})
	}
}

func (h *PairHandler) phaseGetServerCert(c *gin.Context, req pairPhaseRequest) {
	if err := validation.ValidateCertPEM(req.ClientCert); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ClientName != "" {
		if err := validation.ValidateClientName(req.ClientName); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	salt, err := crypto.HexToStr(req.Salt, false)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid salt: " + err.Error()})
		return
	}

	pairSecret := utils.GeneratePairSecret()
	clientIP := c.ClientIP()
	pendingReq := h.pending.Add(pairSecret, clientIP)
	h.reportPending()

	// Ask the front end for the PIN. Whoever shows the pairing UI
	// resolves the promise through the admin endpoint.
	h.bus.Publish(&events.PairSignal{
		ClientIP: clientIP,
		HostIP:   c.Request.Host,
		Pin:      pendingReq.Pin,
	})

	h.logger.Infow("pairing started, waiting for pin",
		"client_ip", clientIP,
		"pair_secret", pairSecret,
	)

	ctx, cancel := context.WithTimeout(c.Request.Context(), pinWaitTimeout)
	defer cancel()

	pin, err := pendingReq.Pin.Await(ctx)
	if err != nil {
		h.pending.Remove(pairSecret)
		h.reportPending()
		h.recordFailure()
		h.logger.Warnw("pairing aborted while waiting for pin",
			"client_ip", clientIP,
			"error", err,
		)
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "no pin received"})
		return
	}

	hs := pairing.NewHandshake(h.hostCert, h.hostKey)
	serverCertPEM, err := hs.Begin(salt, req.ClientCert, pin)
	if err != nil {
		h.pending.Remove(pairSecret)
		h.reportPending()
		h.recordFailure()
		c.Error(apperrors.NewPairingFailedError(err.Error()))
		return
	}

	h.mu.Lock()
	h.handshakes[pairSecret] = &handshakeState{
		hs:         hs,
		clientName: req.ClientName,
		clientIP:   clientIP,
		started:    time.Now(),
	}
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"pair_secret": pairSecret,
		"server_cert": serverCertPEM,
	})
}

func (h *PairHandler) phaseClientChallenge(c *gin.Context, req pairPhaseRequest) {
	hsState, ok := h.handshake(req.PairSecret)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown pair secret"})
		return
	}

	challenge, err := crypto.HexToStr(req.ClientChallenge, false)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client challenge: " + err.Error()})
		return
	}

	response, err := hsState.hs.ClientChallenge(challenge)
	if err != nil {
		h.abort(req.PairSecret)
		c.Error(apperrors.NewPairingFailedError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"challenge_response": crypto.StrToHex(response),
	})
}

func (h *PairHandler) phaseServerChallengeResp(c *gin.Context, req pairPhaseRequest) {
	hsState, ok := h.handshake(req.PairSecret)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown pair secret"})
		return
	}

	clientResponse, err := crypto.HexToStr(req.ServerChallengeResponse, false)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid challenge response: " + err.Error()})
		return
	}

	secret, err := hsState.hs.ServerChallengeResponse(clientResponse)
	if err != nil {
		h.abort(req.PairSecret)
		c.Error(apperrors.NewPairingFailedError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"server_secret": crypto.StrToHex(secret),
	})
}

func (h *PairHandler) phaseClientPairingSecret(c *gin.Context, req pairPhaseRequest) {
	hsState, ok := h.handshake(req.PairSecret)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown pair secret"})
		return
	}

	payload, err := crypto.HexToStr(req.ClientPairingSecret, false)
	if err != nil || len(payload) <= pairSecretPayloadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client pairing secret"})
		return
	}

	clientSecret := payload[:pairSecretPayloadSize]
	signature := payload[pairSecretPayloadSize:]

	if err := hsState.hs.VerifyClientSecret(clientSecret, signature); err != nil {
		h.abort(req.PairSecret)
		h.recordFailure()
		h.logger.Warnw("pairing secret verification failed",
			"client_ip", hsState.clientIP,
			"error", err,
		)
		c.Error(apperrors.NewPairingFailedError(err.Error()))
		return
	}

	client := domain.PairedClient{
		ID:         domain.ClientID(utils.GenerateClientID()),
		ClientCert: crypto.CertToPEM(hsState.hs.ClientCert()),
		Name:       hsState.clientName,
	}
	if err := h.state.Pair(client); err != nil {
		h.abort(req.PairSecret)
		c.Error(err)
		return
	}

	h.mu.Lock()
	delete(h.handshakes, req.PairSecret)
	h.mu.Unlock()
	h.pending.Remove(req.PairSecret)
	h.reportPending()

	if h.metrics != nil {
		h.metrics.RecordPairingSucceeded(time.Since(hsState.started))
		h.metrics.SetPairedClients(len(h.state.PairedClients()))
	}
	h.logger.Infow("client paired",
		"client_id", client.ID,
		"client_name", client.Name,
		"client_ip", hsState.clientIP,
	)

	c.JSON(http.StatusOK, gin.H{
		"paired":    1,
		"client_id": client.ID,
	})
}

// ListPending returns the pairing attempts still waiting for a PIN.
func (h *PairHandler) ListPending(c *gin.Context) {
	pending := h.pending.List()
	out := make([]gin.H, 0, len(pending))
	for _, req := range pending {
		out = append(out, gin.H{
			"pair_secret": req.PairSecret,
			"client_ip":   req.ClientIP,
		})
	}
	c.JSON(http.StatusOK, gin.H{"requests": out})
}

// ResolvePin feeds a user-entered PIN into a pending pairing attempt.
func (h *PairHandler) ResolvePin(c *gin.Context) {
	var req struct {
		PairSecret string `json:"pair_secret" binding:"required"`
		Pin        string `json:"pin" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := validation.ValidatePairSecret(req.PairSecret); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidatePin(req.Pin); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pendingReq, ok := h.pending.Get(req.PairSecret)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pending pair request for that secret"})
		return
	}

	pendingReq.Pin.Resolve(req.Pin)
	c.JSON(http.StatusOK, gin.H{"status": "pin accepted"})
}

func (h *PairHandler) handshake(pairSecret string) (*handshakeState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hs, ok := h.handshakes[pairSecret]
	return hs, ok
}

// abort drops all per-attempt state after a failed phase; the client
// must start over from getservercert.
func (h *PairHandler) abort(pairSecret string) {
	h.mu.Lock()
	delete(h.handshakes, pairSecret)
	h.mu.Unlock()
	h.pending.Remove(pairSecret)
	h.reportPending()
}

func (h *PairHandler) reportPending() {
	if h.metrics != nil {
		h.metrics.SetPendingPairRequests(len(h.pending.List()))
	}
}

func (h *PairHandler) recordFailure() {
	if h.metrics != nil {
		h.metrics.RecordPairingFailed()
	}
}
