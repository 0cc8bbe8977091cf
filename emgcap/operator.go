package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/itohio/emgcap/pkg/metadata"
	"github.com/itohio/emgcap/pkg/storage"
)

func newOperatorCmd(configPath *string) *cobra.Command {
	op := &cobra.Command{Use: "operator", Short: "Manage operators"}
	op.AddCommand(newOperatorAddCmd(configPath))
	op.AddCommand(newOperatorListCmd(configPath))
	op.AddCommand(newOperatorShowCmd(configPath))
	return op
}

func newOperatorAddCmd(configPath *string) *cobra.Command {
	var (
		op                metadata.Operator
		gender, variation string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an operator and print the generated ID",
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := metadata.ParseGender(gender)
			if err != nil {
				return err
			}
			v, err := metadata.ParseVariation(variation)
			if err != nil {
				return err
			}
			op.Gender = g
			op.Variation = v

			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			store, err := storage.Open(ctx, a.cfg.Storage, a.log)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			ids, err := store.OperatorIDs(ctx)
			if err != nil {
				return fmt.Errorf("list operators: %w", err)
			}
			op.ID, err = metadata.NewOperatorID(ids, nil)
			if err != nil {
				return err
			}
			if err := store.SaveOperator(ctx, op); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), op.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&op.Name, "name", "", "Full name")
	cmd.Flags().StringVar(&gender, "gender", "", "Male, Female or Other")
	cmd.Flags().IntVar(&op.Age, "age", 0, "Age in years")
	cmd.Flags().StringVar(&op.City, "city", "", "City")
	cmd.Flags().StringVar(&op.State, "state", "", "State")
	cmd.Flags().StringVar(&op.Nationality, "nationality", "", "Nationality")
	cmd.Flags().StringVar(&op.Profession, "profession", "", "Profession")
	cmd.Flags().StringVar(&variation, "variation", "", "Recording variation, number or name")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("gender")
	_ = cmd.MarkFlagRequired("variation")
	return cmd
}

func newOperatorListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List operator IDs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			store, err := storage.Open(ctx, a.cfg.Storage, a.log)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			ids, err := store.OperatorIDs(ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func newOperatorShowCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show operator details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			store, err := storage.Open(ctx, a.cfg.Storage, a.log)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			lookup, ok := store.(storage.OperatorLookup)
			if !ok {
				return errors.New("storage backend does not support operator lookup")
			}
			op, err := lookup.Operator(ctx, args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "id           %s\n", op.ID)
			fmt.Fprintf(w, "name         %s\n", op.Name)
			fmt.Fprintf(w, "gender       %s\n", op.Gender)
			fmt.Fprintf(w, "age          %d\n", op.Age)
			fmt.Fprintf(w, "city         %s\n", op.City)
			fmt.Fprintf(w, "state        %s\n", op.State)
			fmt.Fprintf(w, "nationality  %s\n", op.Nationality)
			fmt.Fprintf(w, "profession   %s\n", op.Profession)
			fmt.Fprintf(w, "variation    %d (%s)\n", int(op.Variation), op.Variation)
			return nil
		},
	}
}
