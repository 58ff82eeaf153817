package client

// vars, not consts, so tests can point individual endpoints at a stub
// server
var (
	baseUrl               = "http://localhost:8080/v1"
	usersEndpoint         = "/users"
	conversationsEndpoint = "/conversations"
	messagesEndpoint      = "/messages"
	wsBaseUrl             = "ws://localhost:8080/v1"
	chatEndpoint          = "/chat"

	getCurrentActiveUser = baseUrl + usersEndpoint + "/current" // GET
	getConversations     = baseUrl + conversationsEndpoint      // GET
	deleteMessages       = baseUrl + messagesEndpoint           // DELETE

	// getMessages needs the conversation id spliced in: /conversations/{id}/messages
	getMessagesFmt = baseUrl + conversationsEndpoint + "/%s" + messagesEndpoint

	subscribeTo = wsBaseUrl + chatEndpoint
)
