package bitpanel

import (
	"fmt"
	"strings"
)

const (
	selLoginUsername = "input[name='username']"
	selLoginPassword = "input[name='password']"
	selLoginSubmit   = "button[type='submit']"

	selAddButton    = "button.v-btn--fab .mdi-plus"
	selUsernameIn   = "xpath=//label[contains(text(), 'Nome do usuário')]/../input"
	selPlanDropdown = "xpath=//div[@role='button' and .//label[contains(text(), 'Selecione o plano de tv')]]"
	selPriceDrop    = "xpath=//div[@role='button' and .//label[contains(text(), 'Selecione o plano') and not(contains(text(), 'de tv'))]]"
	selSlider       = "xpath=//div[contains(text(), 'Selecione a quantidade de conexões')]/following-sibling::div//div[@role='slider']"
	selSliderTrack  = "xpath=//div[contains(text(), 'Selecione a quantidade de conexões')]/following-sibling::div//div[contains(@class, 'v-slider__track-container')]"
	selMonthsDrop   = "xpath=//div[@role='button' and .//label[contains(text(), 'Selecione a validade')]]"
	selSearch       = "xpath=//label[contains(text(), 'Buscar por nome')]/following-sibling::input"
	selRenewItem    = "xpath=//div[@role='menuitem']//div[contains(@class,'v-list-item__title') and normalize-space(text())='Renovar']"
	selInfoItem     = "xpath=//a[contains(@class, 'v-list-item--link') and .//div[contains(@class,'v-list-item__title') and normalize-space(text())='Ver informações']]"
	selInfoLines    = ".user-infor li"
)

func optionSelector(title string) string {
	return fmt.Sprintf("xpath=//div[contains(@class, 'v-list-item__title') and normalize-space(text()) = %s]", xpathLiteral(title))
}

func dialogButton(label string) string {
	return fmt.Sprintf("xpath=//div[contains(@class, 'v-dialog--active')]//span[normalize-space(text())=%s]/parent::button", xpathLiteral(label))
}

func rowCell(username string) string {
	return fmt.Sprintf("xpath=//td[normalize-space(text())=%s]", xpathLiteral(username))
}

func rowMenu(username string) string {
	return fmt.Sprintf("xpath=//td[normalize-space(text())=%s]/following-sibling::td//i[contains(@class,'mdi-dots-vertical')]", xpathLiteral(username))
}

// monthsOption is the validity option title the panel shows for a number of months.
func monthsOption(months int) string {
	if months == 1 {
		return "1 Mês"
	}
	return fmt.Sprintf("%d Meses", months)
}

// xpathLiteral quotes s for use inside an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}
