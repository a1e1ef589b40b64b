// Smoke-checks a running API: logs in, lists conversations, fetches
// history for the first peer. Useful when pointing the client at a new
// deployment.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
)

type loginResponse struct {
	Token string `json:"token"`
	User  struct {
		ID        string `json:"_id"`
		FirstName string `json:"firstName"`
	} `json:"user"`
}

type conversation struct {
	OtherUserID string `json:"other_user_id"`
	UnreadCount int64  `json:"unread_count"`
}

func main() {
	apiAddr := flag.String("api", "http://localhost:7777", "API base URL")
	email := flag.String("email", "test@example.com", "account email")
	password := flag.String("password", "password", "account password")
	flag.Parse()

	// 1. Login
	reqBody, _ := json.Marshal(map[string]string{"emailId": *email, "password": *password})
	resp, err := http.Post(*apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var login loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		log.Fatal(err)
	}
	if login.Token == "" {
		log.Fatal("login returned no token")
	}
	fmt.Printf("Logged in as %s (%s)\n", login.User.FirstName, login.User.ID)

	// 2. List conversations
	var convs []conversation
	get(*apiAddr+"/conversations", login.Token, &convs)
	fmt.Printf("Conversations: %d\n", len(convs))
	if len(convs) == 0 {
		return
	}

	// 3. Fetch history for the first peer
	peer := convs[0].OtherUserID
	log.Printf("Fetching history with %s...", peer)
	req, _ := http.NewRequest("GET", *apiAddr+"/chat/history/"+peer, nil)
	req.Header.Add("Authorization", "Bearer "+login.Token)

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal("History request failed:", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	log.Printf("History: %s", string(body))
}

func get(url, token string, out any) {
	req, _ := http.NewRequest("GET", url, nil)
	req.Header.Add("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Fatal(err)
	}
}
