package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"furriends-chat/client"
)

const (
	BaseURL   = "http://localhost:8080"
	PairCount = 50 // pairs of users; start small, the database might choke on 1000 immediately
	MsgCount  = 20 // messages per user
)

func main() {
	log.Printf("🔥 STARTING STRESS TEST: %d Users, %d Messages each...", PairCount*2, MsgCount)
	var wg sync.WaitGroup

	// Pairs: user 0 talks to user 1, user 2 talks to user 3...
	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Println("✅ LOAD TEST COMPLETE")
}

func runPair(pairID int) {
	ctx := context.Background()

	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)
	pass := "password123"

	a := authenticate(ctx, userA, pass)
	b := authenticate(ctx, userB, pass)
	if a == nil || b == nil {
		return
	}

	// A looks B up and opens the conversation.
	idB := searchUserID(ctx, a, userB)
	if idB == 0 {
		return
	}
	convID, err := a.StartConversation(ctx, idB)
	if err != nil {
		log.Printf("❌ Create Chat Failed [%s]: %v", userA, err)
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(&wsWg, a, convID, userA)
	go spamChat(&wsWg, b, convID, userB)
	wsWg.Wait()
}

// authenticate registers (ignoring "already exists") and logs in.
func authenticate(ctx context.Context, username, password string) *client.Client {
	c := client.New(BaseURL)
	_ = c.Register(ctx, username, password, username)

	if err := c.Login(ctx, username, password); err != nil {
		log.Printf("❌ Login Failed [%s]: %v", username, err)
		return nil
	}
	return c
}

func searchUserID(ctx context.Context, c *client.Client, username string) int {
	profiles, err := c.SearchUsers(ctx, username)
	if err != nil {
		log.Printf("❌ Search Failed [%s]: %v", username, err)
		return 0
	}
	for _, p := range profiles {
		if p.Username == username {
			return p.ID
		}
	}
	return 0
}

func spamChat(wg *sync.WaitGroup, c *client.Client, convID int, user string) {
	defer wg.Done()

	ctx := context.Background()
	sess := client.NewSync(c)
	sess.Start(ctx)
	defer sess.Close()

	if err := sess.Open(ctx, convID); err != nil {
		log.Printf("❌ Open Fail [%s]: %v", user, err)
		return
	}

	for i := 0; i < MsgCount; i++ {
		if _, err := sess.Send(ctx, fmt.Sprintf("LoadTest Msg %d from %s", i, user)); err != nil {
			log.Printf("❌ Send Fail [%s]: %v", user, err)
			break
		}
		// Small sleep to prevent instant localhost bottleneck
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("✅ %s finished sending %d msgs (buffer=%d)", user, MsgCount, sess.Messages.Len())
}
