package p2p

// Data Schemas for all HTTP endpoints

// Node is a registered onion router. It is never modified after registration.
type Node struct {
	NodeID int    `json:"nodeId"`
	PubKey string `json:"pubKey"`
}

type HTTPRegisterNodeReq struct {
	NodeID *int   `json:"nodeId"`
	PubKey string `json:"pubKey"`
}

type HTTPSchemaNodeRegistry struct {
	Nodes []Node `json:"nodes"`
}

type HTTPPostMessageReq struct {
	Message *string `json:"message"`
}

type HTTPSendMessageReq struct {
	Message           *string `json:"message"`
	DestinationUserID *int    `json:"destinationUserId"`
}

// HTTPSchemaResult wraps every introspection value; a value never set yet is encoded as null.
type HTTPSchemaResult[T any] struct {
	Result T `json:"result"`
}
