package cli

import (
	"context"
	"fmt"
	"log"
)

func (a *App) Register(ctx context.Context) {
	login, err := a.promptString("Login")
	if err != nil {
		return
	}
	password, err := a.promptPassword("Password")
	if err != nil {
		return
	}

	if err := a.remote.Register(ctx, login, password); err != nil {
		log.Printf("registration failed: %v", err)
		return
	}
	fmt.Println("Registered. You can log in now.")
}

func (a *App) Login(ctx context.Context) {
	login, err := a.promptString("Login")
	if err != nil {
		return
	}
	password, err := a.promptPassword("Password")
	if err != nil {
		return
	}

	token, err := a.remote.Login(ctx, login, password)
	if err != nil {
		log.Printf("login failed (offline work is still possible): %v", err)
		return
	}

	a.subscriber.SetToken(token)
	a.userName = login
	a.setMode(ctx, ModeOnline)
	fmt.Println("Logged in.")
}
