package p2p

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func handleStatus(c *gin.Context) {
	c.String(http.StatusOK, "live")
}

// ****************
// Registry
// ****************

func (r *Registry) routes(engine *gin.Engine) {
	engine.GET("/status", handleStatus)
	engine.GET("/metrics", metricsHandler())
	engine.POST("/registerNode", r.handleRegisterNode)
	engine.GET("/getNodeRegistry", r.handleGetNodeRegistry)
}

func (r *Registry) handleRegisterNode(c *gin.Context) {
	var body HTTPRegisterNodeReq
	if err := c.ShouldBindJSON(&body); err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": "request body is invalid", "error": err.Error()})
		return
	}
	if body.NodeID == nil || len(body.PubKey) == 0 {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": "nodeId and pubKey are required"})
		return
	}
	if _, err := ImportPubKey(body.PubKey); err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": "pubKey is not a base64 PKIX rsa key", "error": err.Error()})
		return
	}
	node := Node{NodeID: *body.NodeID, PubKey: body.PubKey}
	if err := r.directory.RegisterNode(c.Request.Context(), node); err != nil {
		logHandlerError(r.name, "handleRegisterNode", c.ClientIP(), err, node.NodeID)
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"message": "register node error", "error": err.Error()})
		return
	}
	c.String(http.StatusOK, "success")
}

func (r *Registry) handleGetNodeRegistry(c *gin.Context) {
	nodes, err := r.directory.ListNodes(c.Request.Context())
	if err != nil {
		logHandlerError(r.name, "handleGetNodeRegistry", c.ClientIP(), err, nil)
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"message": "list nodes error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, HTTPSchemaNodeRegistry{Nodes: nodes})
}

// ****************
// Onion router
// ****************

func (o *OnionRouter) routes(engine *gin.Engine) {
	engine.GET("/status", handleStatus)
	engine.GET("/metrics", metricsHandler())
	engine.GET("/getLastReceivedEncryptedMessage", o.handleGetLastReceivedEncryptedMessage)
	engine.GET("/getLastReceivedDecryptedMessage", o.handleGetLastReceivedDecryptedMessage)
	engine.GET("/getLastMessageDestination", o.handleGetLastMessageDestination)
	engine.GET("/getPrivateKey", o.handleGetPrivateKey)
	engine.POST("/message", o.handlePostMessage)
}

func (o *OnionRouter) handleGetLastReceivedEncryptedMessage(c *gin.Context) {
	c.JSON(http.StatusOK, HTTPSchemaResult[*string]{Result: o.relay.Snapshot().LastReceivedEncryptedMessage})
}

func (o *OnionRouter) handleGetLastReceivedDecryptedMessage(c *gin.Context) {
	c.JSON(http.StatusOK, HTTPSchemaResult[*string]{Result: o.relay.Snapshot().LastReceivedDecryptedMessage})
}

func (o *OnionRouter) handleGetLastMessageDestination(c *gin.Context) {
	c.JSON(http.StatusOK, HTTPSchemaResult[*int]{Result: o.relay.Snapshot().LastMessageDestination})
}

func (o *OnionRouter) handleGetPrivateKey(c *gin.Context) {
	c.JSON(http.StatusOK, HTTPSchemaResult[string]{Result: o.privateKey})
}

func (o *OnionRouter) handlePostMessage(c *gin.Context) {
	var body HTTPPostMessageReq
	if err := c.ShouldBindJSON(&body); err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": "request body is invalid", "error": err.Error()})
		return
	}
	if body.Message == nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": "message is missing"})
		return
	}
	if _, err := o.relay.Forward(c.Request.Context(), *body.Message); err != nil {
		logHandlerError(o.name, "handlePostMessage", c.ClientIP(), err, len(*body.Message))
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"message": "error", "error": err.Error()})
		return
	}
	c.String(http.StatusOK, "success")
}

// ****************
// User
// ****************

func (u *User) routes(engine *gin.Engine) {
	engine.GET("/status", handleStatus)
	engine.GET("/metrics", metricsHandler())
	engine.GET("/getLastReceivedMessage", u.handleGetLastReceivedMessage)
	engine.GET("/getLastSentMessage", u.handleGetLastSentMessage)
	engine.GET("/getLastCircuit", u.handleGetLastCircuit)
	engine.POST("/message", u.handlePostMessage)
	engine.POST("/sendMessage", u.handleSendMessage)
}

func (u *User) handleGetLastReceivedMessage(c *gin.Context) {
	c.JSON(http.StatusOK, HTTPSchemaResult[*string]{Result: u.Snapshot().LastReceivedMessage})
}

func (u *User) handleGetLastSentMessage(c *gin.Context) {
	c.JSON(http.StatusOK, HTTPSchemaResult[*string]{Result: u.Snapshot().LastSentMessage})
}

func (u *User) handleGetLastCircuit(c *gin.Context) {
	c.JSON(http.StatusOK, HTTPSchemaResult[[]int]{Result: u.Snapshot().LastCircuit})
}

func (u *User) handlePostMessage(c *gin.Context) {
	var body HTTPPostMessageReq
	if err := c.ShouldBindJSON(&body); err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": "request body is invalid", "error": err.Error()})
		return
	}
	if body.Message == nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": "message is missing"})
		return
	}
	if err := u.HandleMessage(c.Request.Context(), *body.Message); err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"message": "error", "error": err.Error()})
		return
	}
	c.String(http.StatusOK, "success")
}

func (u *User) handleSendMessage(c *gin.Context) {
	var body HTTPSendMessageReq
	if err := c.ShouldBindJSON(&body); err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": "request body is invalid", "error": err.Error()})
		return
	}
	if body.Message == nil || body.DestinationUserID == nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": "message and destinationUserId are required"})
		return
	}
	if _, err := u.SendMessage(c.Request.Context(), *body.Message, *body.DestinationUserID); err != nil {
		logHandlerError(u.name, "handleSendMessage", c.ClientIP(), err, *body.DestinationUserID)
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"message": "error", "error": err.Error()})
		return
	}
	c.String(http.StatusOK, "success")
}
