package api

import (
	"encoding/json"
	"log/slog"

	"hatch-backend/internal/ai"
	"hatch-backend/internal/database"
	"hatch-backend/pkg/api"
)

func convertChat(c database.Chat) api.Chat {
	return api.Chat{
		Id:         c.Id,
		CreatedAt:  c.CreatedAt,
		Title:      c.Title,
		UserId:     c.UserId,
		Visibility: c.Visibility,
	}
}

func convertChats(cs []database.Chat) []api.Chat {
	chats := make([]api.Chat, 0, len(cs))
	for _, c := range cs {
		chats = append(chats, convertChat(c))
	}
	return chats
}

func convertMessages(ms []database.Message) []api.Message {
	messages := make([]api.Message, 0, len(ms))
	for _, m := range ms {
		messages = append(messages, api.Message{
			Id:        m.Id,
			ChatId:    m.ChatId,
			Role:      m.Role,
			Content:   json.RawMessage(m.Content),
			CreatedAt: m.CreatedAt,
		})
	}
	return messages
}

func convertVotes(vs []database.Vote) []api.Vote {
	votes := make([]api.Vote, 0, len(vs))
	for _, v := range vs {
		votes = append(votes, api.Vote{ChatId: v.ChatId, MessageId: v.MessageId, IsUpvoted: v.IsUpvoted})
	}
	return votes
}

func convertDocument(d database.Document) api.Document {
	return api.Document{
		Id:        d.Id,
		CreatedAt: d.CreatedAt,
		Title:     d.Title,
		Content:   d.Content,
		Kind:      d.Kind,
		UserId:    d.UserId,
	}
}

func convertDocuments(ds []database.Document) []api.Document {
	docs := make([]api.Document, 0, len(ds))
	for _, d := range ds {
		docs = append(docs, convertDocument(d))
	}
	return docs
}

func convertSuggestions(ss []database.Suggestion) []api.Suggestion {
	suggestions := make([]api.Suggestion, 0, len(ss))
	for _, s := range ss {
		suggestions = append(suggestions, api.Suggestion{
			Id:                s.Id,
			DocumentId:        s.DocumentId,
			DocumentCreatedAt: s.DocumentCreatedAt,
			OriginalText:      s.OriginalText,
			SuggestedText:     s.SuggestedText,
			Description:       s.Description,
			IsResolved:        s.IsResolved,
			UserId:            s.UserId,
			CreatedAt:         s.CreatedAt,
		})
	}
	return suggestions
}

func convertModels(ms []ai.Model) []api.ModelInfo {
	models := make([]api.ModelInfo, 0, len(ms))
	for _, m := range ms {
		models = append(models, api.ModelInfo{
			Id:            m.Id,
			Label:         m.Label,
			ApiIdentifier: m.ApiIdentifier,
			Description:   m.Description,
		})
	}
	return models
}

func convertCompanies(cs []database.InsuranceCompany) []api.InsuranceCompany {
	companies := make([]api.InsuranceCompany, 0, len(cs))
	for _, c := range cs {
		companies = append(companies, api.InsuranceCompany{Id: c.Id, Name: c.Name})
	}
	return companies
}

func convertPlans(ps []database.InsurancePlan) []api.InsurancePlan {
	plans := make([]api.InsurancePlan, 0, len(ps))
	for _, p := range ps {
		plans = append(plans, api.InsurancePlan{Id: p.Id, CompanyId: p.CompanyId, Name: p.Name, Type: p.Type})
	}
	return plans
}

func convertInsuranceDetails(d database.InsuranceDetails) api.InsuranceDetails {
	details := api.InsuranceDetails{
		MedicalBills: make([]api.MedicalBill, 0, len(d.MedicalBills)),
		Transcripts:  make([]api.Transcript, 0, len(d.Transcripts)),
	}
	for _, b := range d.MedicalBills {
		details.MedicalBills = append(details.MedicalBills, api.MedicalBill(b))
	}
	for _, t := range d.Transcripts {
		details.Transcripts = append(details.Transcripts, api.Transcript(t))
	}
	return details
}

func convertUserInsurance(r database.UserInsuranceRecord) api.UserInsurance {
	return api.UserInsurance{
		CompanyId:   r.CompanyId,
		CompanyName: r.CompanyName,
		PlanId:      r.PlanId,
		PlanName:    r.PlanName,
		PlanType:    r.PlanType,
		MemberId:    r.MemberId.String,
		GroupId:     r.GroupId.String,
		DetailsJson: convertInsuranceDetails(r.Details.Data()),
	}
}

func toDatabaseDetails(d *api.InsuranceDetails) *database.InsuranceDetails {
	if d == nil {
		return nil
	}
	details := &database.InsuranceDetails{}
	for _, b := range d.MedicalBills {
		details.MedicalBills = append(details.MedicalBills, database.MedicalBill(b))
	}
	for _, t := range d.Transcripts {
		details.Transcripts = append(details.Transcripts, database.Transcript(t))
	}
	return details
}

// toAIMessages converts the client's view of the conversation into model
// messages. Tool invocations that have a result become a tool call on the
// assistant turn followed by a tool turn with the result. Invocations that
// never finished are left out.
func toAIMessages(ms []api.ChatMessage) []ai.Message {
	messages := make([]ai.Message, 0, len(ms))
	for _, m := range ms {
		switch m.Role {
		case string(ai.RoleUser):
			messages = append(messages, ai.TextMessage(ai.RoleUser, m.Content))

		case string(ai.RoleAssistant):
			assistant := ai.Message{Role: ai.RoleAssistant}
			if m.Content != "" {
				assistant.Content = append(assistant.Content, ai.Part{Type: ai.PartText, Text: m.Content})
			}
			results := ai.Message{Role: ai.RoleTool}
			for _, inv := range m.ToolInvocations {
				if inv.State != api.ToolInvocationResult {
					continue
				}
				assistant.Content = append(assistant.Content, ai.Part{
					Type:       ai.PartToolCall,
					ToolCallId: inv.ToolCallId,
					ToolName:   inv.ToolName,
					Args:       inv.Args,
				})
				results.Content = append(results.Content, ai.Part{
					Type:       ai.PartToolResult,
					ToolCallId: inv.ToolCallId,
					ToolName:   inv.ToolName,
					Result:     inv.Result,
				})
			}
			if len(assistant.Content) > 0 {
				messages = append(messages, assistant)
			}
			if len(results.Content) > 0 {
				messages = append(messages, results)
			}

		default:
			slog.Warn("ignoring chat message with unsupported role", "role", m.Role, "message_id", m.Id)
		}
	}
	return messages
}
