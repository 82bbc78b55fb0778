package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/huddlechat/huddle/auth"
	"github.com/huddlechat/huddle/config"
	"github.com/huddlechat/huddle/globals"
	"github.com/huddlechat/huddle/persistence"
	"github.com/huddlechat/huddle/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// A very simple CLI tool for the administration of huddle rooms and
// users, operating directly on the configured store.

var configPath = pflag.StringP("config", "c", "", "path to config file or directory")

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	cfg, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if cfg.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(cfg.LogLevel))
	}

	store, err := persistence.NewStore(cfg)
	if err != nil {
		panic(err)
	}
	defer store.Close()

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show rooms or users",
		Long:  `show prints room or user information from the store.`,
	}
	var cmdShowRooms = &cobra.Command{
		Use:   "rooms",
		Short: "Show rooms",
		Long:  `show rooms lists all active rooms.`,
		Run: func(cmd *cobra.Command, args []string) {
			rooms, err := store.ActiveRooms()
			if err != nil {
				globals.AppLogger.Error("could not get rooms", "error", err)
				return
			}
			r, err := json.Marshal(rooms)
			if err != nil {
				globals.AppLogger.Error("could not marshal rooms", "error", err)
				return
			}
			fmt.Println(string(r))
		},
	}
	var cmdShowRoom = &cobra.Command{
		Use:   "room [room id]",
		Short: "Show room",
		Long:  `show room prints detail information about the room with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			room, err := store.GetRoom(args[0])
			if err != nil {
				globals.AppLogger.Error("could not get room", "error", err)
				return
			}
			r, err := json.Marshal(room)
			if err != nil {
				globals.AppLogger.Error("could not marshal room", "error", err)
				return
			}
			fmt.Println(string(r))
		},
	}
	var cmdShowUser = &cobra.Command{
		Use:   "user [username]",
		Short: "Show user",
		Long:  `show user prints detail information about the user with the given username.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user, err := store.GetUserByUsername(args[0])
			if err != nil {
				globals.AppLogger.Error("could not get user", "error", err)
				return
			}
			u, err := json.Marshal(user.Public())
			if err != nil {
				globals.AppLogger.Error("could not marshal user", "error", err)
				return
			}
			fmt.Println(string(u))
		},
	}
	var cmdSet = &cobra.Command{
		Use:   "set",
		Short: "create/update rooms or users",
		Long:  `set creates or updates a room or user.`,
	}
	var cmdSetRoom = &cobra.Command{
		Use:   "room [room definition]",
		Short: "Set room",
		Long:  `set room creates or updates a room. If the room definition is "-", the definition is read from STDIN.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var r io.Reader
			if args[0] == "-" {
				r = os.Stdin
			} else {
				r = bytes.NewReader([]byte(args[0]))
			}
			room := types.Room{}
			if err := json.NewDecoder(r).Decode(&room); err != nil {
				globals.AppLogger.Error("could not decode room", "error", err)
				return
			}
			if room.Id == "" {
				room.Id = uuid.NewString()
			}
			if room.CreatedAt.IsZero() {
				room.CreatedAt = time.Now()
				room.LastActivity = room.CreatedAt
				room.IsActive = true
			}
			if err := store.SaveRoom(&room); err != nil {
				globals.AppLogger.Error("could not store room", "error", err)
				return
			}
			fmt.Println(room.Id)
		},
	}
	var cmdSetUser = &cobra.Command{
		Use:   "user [username] [password]",
		Short: "Set user",
		Long:  `set user creates a user with the given username and password, or resets the password of an existing one.`,
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			hash, err := auth.HashPassword(args[1])
			if err != nil {
				globals.AppLogger.Error("could not hash password", "error", err)
				return
			}
			user, err := store.GetUserByUsername(args[0])
			if err != nil {
				user = &types.User{Id: uuid.NewString(), Username: args[0], CreatedAt: time.Now()}
			}
			user.PasswordHash = hash
			if err := store.SaveUser(user); err != nil {
				globals.AppLogger.Error("could not store user", "error", err)
				return
			}
			fmt.Println(user.Id)
		},
	}
	var cmdDeactivate = &cobra.Command{
		Use:   "deactivate",
		Short: "deactivate a room",
		Long:  `deactivate soft-deletes a room, keeping its messages and membership.`,
	}
	var cmdDeactivateRoom = &cobra.Command{
		Use:   "room [room id]",
		Short: "Deactivate room",
		Long:  `deactivate room flips the room with the given id to inactive.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			room, err := store.GetRoom(args[0])
			if err != nil {
				globals.AppLogger.Error("could not get room", "error", err)
				return
			}
			room.IsActive = false
			if err := store.SaveRoom(room); err != nil {
				globals.AppLogger.Error("could not store room", "error", err)
				return
			}
		},
	}
	var rootCmd = &cobra.Command{Use: "huddle-admin"}
	rootCmd.AddCommand(cmdShow, cmdSet, cmdDeactivate)
	cmdShow.AddCommand(cmdShowRooms, cmdShowRoom, cmdShowUser)
	cmdSet.AddCommand(cmdSetRoom, cmdSetUser)
	cmdDeactivate.AddCommand(cmdDeactivateRoom)
	rootCmd.Execute() //nolint
}
