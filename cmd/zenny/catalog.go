package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/catalog"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/cli"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"cat"},
		Short:   "Manage categories",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List system categories and your own",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			categories, err := a.catalog().Categories(cmd.Context(), a.userID())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, cli.TableHeader("ID", "NAME", "TYPE", "SCOPE", "OWNER"))
			for _, c := range categories {
				owner := "you"
				if c.IsSystem() {
					owner = cli.SubtleStyle.Render("system")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.TransactionType, c.UsageScope, owner)
			}
			return w.Flush()
		},
	}

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			cat, created, err := a.catalog().CreateCategory(cmd.Context(), a.userID(), catalog.NewCategory{
				Name:            args[0],
				Description:     mustString(cmd, "description"),
				TransactionType: model.TransactionType(mustString(cmd, "type")),
				UsageScope:      model.UsageScope(mustString(cmd, "scope")),
			})
			if err != nil {
				return err
			}
			if !created {
				fmt.Println(cli.FormatInfo(fmt.Sprintf("Category %q already exists (%s)", cat.Name, cat.ID)))
				return nil
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Created category %q (%s)", cat.Name, cat.ID)))
			return nil
		},
	}
	add.Flags().String("type", string(model.TransactionTypeExpense), "transaction type (expense, income)")
	add.Flags().String("scope", string(model.UsageScopeBoth), "usage scope (personal, business, both)")
	add.Flags().String("description", "", "category description")

	del := &cobra.Command{
		Use:   "delete <category-id>",
		Short: "Delete one of your categories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.catalog().DeleteCategory(cmd.Context(), a.userID(), args[0]); err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess("Category deleted"))
			return nil
		},
	}

	cmd.AddCommand(list, add, del)
	return cmd
}

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage categorization rules",
		Long: `Rules assign a category when a transaction field matches a pattern. They
are tried in the order they were created and always win over history and the
language model.`,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List your rules in evaluation order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			svc := a.catalog()
			rules, err := svc.Rules(cmd.Context(), a.userID())
			if err != nil {
				return err
			}
			categories, err := svc.Categories(cmd.Context(), a.userID())
			if err != nil {
				return err
			}
			names := make(map[string]string, len(categories))
			for _, c := range categories {
				names[c.ID] = c.Name
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, cli.TableHeader("ID", "FIELD", "MATCH", "PATTERN", "CATEGORY"))
			for _, r := range rules {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Field, r.MatchType, r.Pattern, names[r.CategoryID])
			}
			return w.Flush()
		},
	}

	add := &cobra.Command{
		Use:   "add <pattern>",
		Short: "Create a rule",
		Long: `Create a rule matching pattern against a transaction field.

Examples:
  zenny rules add --category Groceries "whole foods"
  zenny rules add --category Travel --match regex --field description "^UBER\s+TRIP"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			svc := a.catalog()
			categoryID, err := resolveCategory(cmd, svc, a.userID(), mustString(cmd, "category"))
			if err != nil {
				return err
			}
			rule, err := svc.CreateRule(cmd.Context(), a.userID(), catalog.NewRule{
				CategoryID:  categoryID,
				Field:       mustString(cmd, "field"),
				MatchType:   mustString(cmd, "match"),
				Pattern:     args[0],
				DisplayName: mustString(cmd, "display-name"),
			})
			if err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Created rule %s", rule.ID)))
			return nil
		},
	}
	add.Flags().String("category", "", "category id or name (required)")
	add.Flags().String("field", string(model.RuleFieldMerchantName), "field to match (merchantName, description)")
	add.Flags().String("match", string(model.MatchContains), "match type (exact, contains, regex)")
	add.Flags().String("display-name", "", "merchant name to display for matches")
	_ = add.MarkFlagRequired("category")

	del := &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.catalog().DeleteRule(cmd.Context(), a.userID(), args[0]); err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess("Rule deleted"))
			return nil
		},
	}

	cmd.AddCommand(list, add, del)
	return cmd
}

// resolveCategory accepts a category id or a unique name.
func resolveCategory(cmd *cobra.Command, svc *catalog.Service, userID, ref string) (string, error) {
	categories, err := svc.Categories(cmd.Context(), userID)
	if err != nil {
		return "", err
	}
	for _, c := range categories {
		if c.ID == ref {
			return c.ID, nil
		}
	}
	if c, ok := model.FindCategoryByName(categories, ref); ok {
		return c.ID, nil
	}
	return "", common.NewUserError(fmt.Sprintf("No category named %q; see `zenny categories list`", ref), common.ErrNotFound)
}

func businessesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "businesses",
		Aliases: []string{"biz"},
		Short:   "Manage the businesses transactions can be assigned to",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List your businesses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			businesses, err := a.catalog().Businesses(cmd.Context(), a.userID())
			if err != nil {
				return err
			}
			if len(businesses) == 0 {
				fmt.Println(cli.FormatInfo("No businesses; everything is " + model.PersonalLabel))
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, cli.TableHeader("ID", "NAME", "TYPE", "TAX ID"))
			for _, b := range businesses {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.ID, b.Name, b.Type, b.TaxID)
			}
			return w.Flush()
		},
	}

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a business",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.catalog().CreateBusiness(cmd.Context(), a.userID(), catalog.NewBusiness{
				Name:        args[0],
				Type:        model.BusinessType(mustString(cmd, "type")),
				TaxID:       mustString(cmd, "tax-id"),
				Address:     mustString(cmd, "address"),
				Description: mustString(cmd, "description"),
			})
			if err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Created business %q (%s)", b.Name, b.ID)))
			return nil
		},
	}
	add.Flags().String("type", string(model.BusinessTypeBusiness), "business type (business, contract)")
	add.Flags().String("tax-id", "", "tax identifier")
	add.Flags().String("address", "", "postal address")
	add.Flags().String("description", "", "what the business does")

	del := &cobra.Command{
		Use:   "delete <business-id>",
		Short: "Delete a business; its transactions show as " + model.PersonalLabel,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.catalog().DeleteBusiness(cmd.Context(), a.userID(), args[0]); err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess("Business deleted"))
			return nil
		},
	}

	cmd.AddCommand(list, add, del)
	return cmd
}
